package all_test

import (
	"testing"

	"github.com/flemzord/dbarchiver/internal/provider"
	_ "github.com/flemzord/dbarchiver/modules/provider/all"
)

func TestAllProvidersRegistered(t *testing.T) {
	t.Parallel()

	want := []string{"bbolt", "couchbase", "mongodb", "mssql", "mysql", "postgresql", "s3", "sqlite"}
	got := provider.List()
	if len(got) != len(want) {
		t.Fatalf("registered %d providers, want %d", len(got), len(want))
	}
	for i, info := range got {
		if info.Name != want[i] {
			t.Errorf("provider[%d] = %s, want %s", i, info.Name, want[i])
		}
	}
}
