package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/dbarchiver/internal/config"
	"github.com/flemzord/dbarchiver/internal/cron"
	"github.com/flemzord/dbarchiver/internal/provider"
)

// settingField is one key of a provider settings section.
type settingField struct {
	Key    string
	Kind   reflect.Kind
	Secret bool
}

// wizardAnswers is everything the init wizard asks for.
type wizardAnswers struct {
	JobName        string
	Cron           string
	BatchSize      string
	Delete         bool
	SourceProvider string
	TargetProvider string
	PreScript      string
	SourceSettings map[string]string
	TargetSettings map[string]string
}

func initCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				}
			}

			a, err := runWizard()
			if err != nil {
				return err
			}
			raw, err := renderConfig(a)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, raw, 0o600); err != nil {
				return err
			}
			return checkConfig(cmd.OutOrStdout(), output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", config.FileName, "File to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func runWizard() (wizardAnswers, error) {
	a := wizardAnswers{Cron: "0 2 * * *", BatchSize: "1000"}

	job := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Job name").Value(&a.JobName).Validate(required),
			huh.NewInput().Title("Schedule (cron)").
				Description("Five or six fields, or a descriptor such as @daily").
				Value(&a.Cron).Validate(validCron),
			huh.NewInput().Title("Batch size").Value(&a.BatchSize).Validate(positiveInt),
			huh.NewSelect[string]().Title("Source provider").
				Options(providerOptions(provider.CapSource)...).Value(&a.SourceProvider),
			huh.NewSelect[string]().Title("Target provider").
				Options(providerOptions(provider.CapTarget)...).Value(&a.TargetProvider),
			huh.NewConfirm().Title("Delete records from the source once archived?").Value(&a.Delete),
		),
	)
	if err := job.Run(); err != nil {
		return a, err
	}

	srcFields, err := providerFields(a.SourceProvider, provider.CapSource)
	if err != nil {
		return a, err
	}
	tgtFields, err := providerFields(a.TargetProvider, provider.CapTarget)
	if err != nil {
		return a, err
	}

	srcInputs, srcValues := settingInputs("Source", srcFields)
	tgtInputs, tgtValues := settingInputs("Target", tgtFields)
	settings := huh.NewForm(
		huh.NewGroup(srcInputs...),
		huh.NewGroup(append(tgtInputs,
			huh.NewText().Title("Target pre-script").
				Description("Run before every archival, e.g. CREATE TABLE IF NOT EXISTS ...").
				Value(&a.PreScript),
		)...),
	)
	if err := settings.Run(); err != nil {
		return a, err
	}

	a.SourceSettings = collect(srcValues)
	a.TargetSettings = collect(tgtValues)
	return a, nil
}

func settingInputs(role string, fields []settingField) ([]huh.Field, map[string]*string) {
	inputs := make([]huh.Field, 0, len(fields))
	values := make(map[string]*string, len(fields))
	for _, f := range fields {
		val := new(string)
		values[f.Key] = val
		in := huh.NewInput().
			Title(fmt.Sprintf("%s %s", role, f.Key)).
			Value(val).
			Validate(validKind(f.Kind))
		if f.Secret {
			in = in.EchoMode(huh.EchoModePassword).Description("Prefer ${ENV_VAR} over a literal secret")
		}
		inputs = append(inputs, in)
	}
	return inputs, values
}

func collect(values map[string]*string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = *v
	}
	return out
}

func providerOptions(capability provider.Capability) []huh.Option[string] {
	var opts []huh.Option[string]
	for _, info := range provider.List() {
		if info.Capabilities()&capability == 0 {
			continue
		}
		label := info.Name
		if info.Description != "" {
			label += " - " + info.Description
		}
		opts = append(opts, huh.NewOption(label, info.Name))
	}
	return opts
}

// providerFields lists the settings keys of the named provider in
// declaration order.
func providerFields(name string, capability provider.Capability) ([]settingField, error) {
	info, err := provider.Resolve(name, capability)
	if err != nil {
		return nil, err
	}
	if capability == provider.CapSource {
		return settingFields(info.Source.NewSettings()), nil
	}
	return settingFields(info.Target.NewSettings()), nil
}

// settingFields reflects over the yaml tags of a settings struct.
func settingFields(settings any) []settingField {
	t := reflect.TypeOf(settings)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var out []settingField
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		key, _, _ := strings.Cut(sf.Tag.Get("yaml"), ",")
		if key == "" || key == "-" {
			continue
		}
		kind := sf.Type.Kind()
		if sf.Type.PkgPath() == "time" && sf.Type.Name() == "Duration" {
			kind = reflect.String
		}
		out = append(out, settingField{
			Key:    key,
			Kind:   kind,
			Secret: strings.Contains(key, "connection_string") || strings.Contains(key, "secret"),
		})
	}
	return out
}

// renderConfig turns wizard answers into a configuration file. Empty
// settings are left out so provider defaults apply.
func renderConfig(a wizardAnswers) ([]byte, error) {
	batch, err := strconv.Atoi(a.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("batch size: %w", err)
	}
	srcFields, err := providerFields(a.SourceProvider, provider.CapSource)
	if err != nil {
		return nil, err
	}
	tgtFields, err := providerFields(a.TargetProvider, provider.CapTarget)
	if err != nil {
		return nil, err
	}
	srcSettings, err := typedSettings(srcFields, a.SourceSettings)
	if err != nil {
		return nil, fmt.Errorf("source settings: %w", err)
	}
	tgtSettings, err := typedSettings(tgtFields, a.TargetSettings)
	if err != nil {
		return nil, fmt.Errorf("target settings: %w", err)
	}

	source := map[string]any{
		"provider":              a.SourceProvider,
		"batch_size":            batch,
		"delete_after_archived": a.Delete,
		"settings":              srcSettings,
	}
	target := map[string]any{
		"provider": a.TargetProvider,
		"settings": tgtSettings,
	}
	if strings.TrimSpace(a.PreScript) != "" {
		target["pre_script"] = a.PreScript
	}

	doc := map[string]any{
		"version": "1",
		"logging": map[string]string{"level": "info", "format": "text"},
		"jobs": []any{map[string]any{
			"schedule": map[string]string{"name": a.JobName, "cron": a.Cron},
			"transfer": map[string]any{"source": source, "target": target},
		}},
	}
	return yaml.Marshal(doc)
}

func typedSettings(fields []settingField, values map[string]string) (map[string]any, error) {
	out := make(map[string]any)
	for _, f := range fields {
		v := strings.TrimSpace(values[f.Key])
		if v == "" {
			continue
		}
		switch f.Kind {
		case reflect.Bool:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Key, err)
			}
			out[f.Key] = b
		case reflect.Int, reflect.Int64, reflect.Int32:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", f.Key, err)
			}
			out[f.Key] = n
		default:
			out[f.Key] = v
		}
	}
	return out, nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func validCron(s string) error {
	if _, err := cron.Parser.Parse(s); err != nil {
		return err
	}
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return errors.New("must be a positive integer")
	}
	return nil
}

func validKind(kind reflect.Kind) func(string) error {
	return func(s string) error {
		if s == "" {
			return nil
		}
		switch kind {
		case reflect.Bool:
			if _, err := strconv.ParseBool(s); err != nil {
				return errors.New("must be true or false")
			}
		case reflect.Int, reflect.Int64, reflect.Int32:
			if _, err := strconv.Atoi(s); err != nil {
				return errors.New("must be an integer")
			}
		}
		return nil
	}
}
