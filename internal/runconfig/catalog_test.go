package runconfig

import (
	"testing"

	"github.com/phonebill/runcfg/pkg/api"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanSkipsMissingAndMalformed(t *testing.T) {
	root := t.TempDir()
	writeRunConfig(t, root, "user-service", runXML(map[string]string{"PORT": "8081"}, []string{"PORT"}, []string{":user-service:bootRun"}))
	writeRunConfig(t, root, "trip-service", "<component><configuration")
	writeRunConfig(t, root, "ai-service", runXML(nil, nil, []string{":ai-service:bootRun"}))

	catalog, problems := Scan(root, DefaultServices)

	assert.Equal(t, []string{"user-service", "ai-service"}, catalog.Names())
	require.Len(t, problems, 1)
	var perr *ParseError
	assert.ErrorAs(t, problems[0], &perr)
	assert.Equal(t, Path(root, "trip-service"), perr.Path)
}

func TestScanDropsEmptyConfigurations(t *testing.T) {
	root := t.TempDir()
	writeRunConfig(t, root, "user-service", runXML(nil, nil, nil))

	catalog, problems := Scan(root, []string{"user-service"})

	assert.Empty(t, problems)
	assert.Zero(t, catalog.Len())
}

func TestLoadSingleService(t *testing.T) {
	root := t.TempDir()
	writeRunConfig(t, root, "kos-mock", runXML(nil, nil, []string{":kos-mock:bootRun"}))

	catalog, err := Load(root, "kos-mock")
	require.NoError(t, err)
	cfg, ok := catalog.Get("kos-mock")
	require.True(t, ok)
	assert.Equal(t, []string{":kos-mock:bootRun"}, cfg.Tasks)
}

func TestLoadMissingService(t *testing.T) {
	catalog, err := Load(t.TempDir(), "nowhere")
	assert.True(t, eris.Is(err, ErrConfigNotFound))
	assert.Zero(t, catalog.Len())
}

func TestCatalogMergeKeepsOrder(t *testing.T) {
	a := NewCatalog()
	a.Add(&api.RunConfiguration{Service: "one", Tasks: []string{"x"}})
	a.Add(&api.RunConfiguration{Service: "two", Tasks: []string{"y"}})

	b := NewCatalog()
	b.Add(&api.RunConfiguration{Service: "two", Tasks: []string{"z"}})
	b.Add(&api.RunConfiguration{Service: "three", Tasks: []string{"w"}})

	a.Merge(b)

	assert.Equal(t, []string{"one", "two", "three"}, a.Names())
	two, _ := a.Get("two")
	assert.Equal(t, []string{"z"}, two.Tasks)
}
