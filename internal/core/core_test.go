package core

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/phonebill/runcfg/internal/console"
	"github.com/phonebill/runcfg/internal/runner"
	"github.com/phonebill/runcfg/internal/telemetry"
	"github.com/phonebill/runcfg/pkg/api"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gradleStub = `#!/bin/sh
echo "$1" >> invocations.log
echo "> Task :$1"
case "$1" in
  fail*) echo "BUILD FAILED" 1>&2; exit 2 ;;
  printEnv) echo "DB_HOST=$DB_HOST DB_PORT=$DB_PORT" ;;
esac
exit 0
`

func runConfigXML(env map[string]string, tasks ...string) string {
	var b strings.Builder
	b.WriteString(`<component name="ProjectRunConfigurationManager">
  <configuration default="false" name="svc" type="GradleRunConfiguration" factoryName="Gradle">
    <ExternalSystemSettings>
      <option name="env">
        <map>
`)
	for k, v := range env {
		fmt.Fprintf(&b, "          <entry key=%q value=%q />\n", k, v)
	}
	b.WriteString(`        </map>
      </option>
      <option name="taskNames">
        <list>
`)
	for _, task := range tasks {
		fmt.Fprintf(&b, "          <option value=%q />\n", task)
	}
	b.WriteString(`        </list>
      </option>
    </ExternalSystemSettings>
  </configuration>
</component>
`)
	return b.String()
}

type workspace struct {
	root  string
	out   bytes.Buffer
	store *Store
	orch  *Orchestrator
}

func newWorkspace(t *testing.T, services ...string) *workspace {
	t.Helper()
	p := &workspace{root: t.TempDir()}
	cfg := DefaultConfig()
	cfg.Root = p.root
	if len(services) > 0 {
		cfg.Services = services
	}

	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	p.store = store

	p.orch = NewOrchestrator(cfg, console.New(&p.out, false), telemetry.NewCollector(true, ""), store)
	return p
}

func (p *workspace) writeConfig(t *testing.T, service, content string) {
	t.Helper()
	dir := filepath.Join(p.root, service, ".run")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, service+".run.xml"), []byte(content), 0o644))
}

func (p *workspace) installGradlew(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("gradlew stub is a POSIX shell script")
	}
	require.NoError(t, os.WriteFile(filepath.Join(p.root, "gradlew"), []byte(gradleStub), 0o755))
}

func (p *workspace) invocations(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.root, "invocations.log"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Fields(string(data))
}

func requireExit(t *testing.T, err error, target error) {
	t.Helper()
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
	if target != nil {
		assert.True(t, eris.Is(err, target), "expected %v, got %v", target, err)
	}
}

func TestExecuteList(t *testing.T) {
	p := newWorkspace(t)
	p.writeConfig(t, "user-service", runConfigXML(map[string]string{"SERVER_PORT": "8081"}, "clean", "bootRun"))
	p.writeConfig(t, "trip-service", runConfigXML(map[string]string{"A": "1"}))

	err := p.orch.Execute(context.Background(), Options{List: true})
	require.NoError(t, err)

	out := p.out.String()
	assert.Contains(t, out, "[INFO] Found 2 execution configurations")
	assert.Contains(t, out, "[LIST] Available services:")
	assert.Contains(t, out, "  [SERVICE] user-service")
	assert.Contains(t, out, "     +-- Config: "+filepath.Join(p.root, "user-service", ".run", "user-service.run.xml"))
	assert.Contains(t, out, "     +-- Task: clean\n     +-- Task: bootRun\n")
	assert.Contains(t, out, "     +-- 1 environment variables")
	// env-only configurations have nothing to run
	assert.NotContains(t, out, "[SERVICE] trip-service")
}

func TestExecuteListWithoutConfigurations(t *testing.T) {
	p := newWorkspace(t)

	err := p.orch.Execute(context.Background(), Options{List: true})
	requireExit(t, err, ErrNoConfigurations)
	assert.Contains(t, p.out.String(), "[ERROR] No execution configurations found")
}

func TestExecuteWithoutServiceName(t *testing.T) {
	p := newWorkspace(t)
	p.writeConfig(t, "ai-service", runConfigXML(nil, "bootRun"))

	err := p.orch.Execute(context.Background(), Options{})
	requireExit(t, err, ErrNoServiceName)

	out := p.out.String()
	assert.Contains(t, out, "[ERROR] Please provide service name")
	assert.Contains(t, out, "[SERVICE] ai-service")
	assert.Contains(t, out, "Usage: runcfg <service-name>")
}

func TestExecuteServiceNotFound(t *testing.T) {
	p := newWorkspace(t)
	p.writeConfig(t, "user-service", runConfigXML(nil, "bootRun"))

	err := p.orch.Execute(context.Background(), Options{Service: "bill-service"})
	requireExit(t, err, ErrServiceNotFound)

	out := p.out.String()
	assert.Contains(t, out, "[INFO] Trying to find configuration for 'bill-service'...")
	assert.Contains(t, out, "[ERROR] Cannot find run configuration: "+filepath.Join(p.root, "bill-service", ".run", "bill-service.run.xml"))
	assert.Contains(t, out, "[ERROR] Cannot find 'bill-service' service")
	assert.Contains(t, out, "[SERVICE] user-service")
}

func TestExecuteServiceWithoutTasks(t *testing.T) {
	p := newWorkspace(t)
	p.writeConfig(t, "location-service", runConfigXML(map[string]string{"REDIS_HOST": "localhost"}))

	err := p.orch.Execute(context.Background(), Options{Service: "location-service"})
	requireExit(t, err, ErrNoTasks)
	assert.Contains(t, p.out.String(), "[ERROR] No executable tasks found for 'location-service' service")
}

func TestExecuteRunsTargetedService(t *testing.T) {
	p := newWorkspace(t)
	p.installGradlew(t)
	p.writeConfig(t, "user-service", runConfigXML(nil, "bootRun"))
	// not in the scanned list, found by the targeted lookup
	p.writeConfig(t, "bill-service", runConfigXML(map[string]string{"DB_HOST": "db"}, "clean", "build"))

	err := p.orch.Execute(context.Background(), Options{Service: "bill-service"})
	require.NoError(t, err)

	assert.Equal(t, []string{"clean", "build"}, p.invocations(t))
	out := p.out.String()
	assert.Contains(t, out, "[TARGET] Starting 'bill-service' service execution")
	assert.Contains(t, out, "> Task :build")
	assert.Contains(t, out, "[CMD] Command: "+filepath.Join(p.root, "gradlew")+" clean")
	assert.Contains(t, out, "[COMPLETE] 'bill-service' service started successfully!")

	recs, err := p.store.Recent(context.Background(), "bill-service", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, api.RunSucceeded, recs[0].Status)
}

func TestExecuteEmptyScanIsFatalWithServiceName(t *testing.T) {
	p := newWorkspace(t, "user-service")
	p.installGradlew(t)
	p.writeConfig(t, "bill-service", runConfigXML(nil, "bootRun"))

	err := p.orch.Execute(context.Background(), Options{Service: "bill-service"})
	requireExit(t, err, ErrNoConfigurations)

	assert.Empty(t, p.invocations(t))
	out := p.out.String()
	assert.Contains(t, out, "[ERROR] No execution configurations found")
	assert.NotContains(t, out, "Trying to find configuration")
	assert.NotContains(t, out, "[COMPLETE]")
}

func TestExecuteStopsAtFailedTask(t *testing.T) {
	p := newWorkspace(t)
	p.installGradlew(t)
	p.writeConfig(t, "user-service", runConfigXML(nil, "compileJava", "failTest", "bootRun"))

	err := p.orch.Execute(context.Background(), Options{Service: "user-service"})
	requireExit(t, err, nil)

	var failed *runner.TaskFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "failTest", failed.Task)
	assert.Equal(t, 2, failed.ExitCode)

	assert.Equal(t, []string{"compileJava", "failTest"}, p.invocations(t))
	out := p.out.String()
	assert.Contains(t, out, "BUILD FAILED")
	assert.Contains(t, out, "[FAILED] Failed to start 'user-service' service")
}

func TestExecuteReportsMalformedConfiguration(t *testing.T) {
	p := newWorkspace(t)
	p.writeConfig(t, "user-service", "<component><configuration")
	p.writeConfig(t, "trip-service", `<component><configuration type="Application"/></component>`)
	p.writeConfig(t, "ai-service", runConfigXML(nil, "bootRun"))

	err := p.orch.Execute(context.Background(), Options{List: true})
	require.NoError(t, err)

	out := p.out.String()
	assert.Contains(t, out, "[ERROR] XML parsing error in "+filepath.Join(p.root, "user-service", ".run", "user-service.run.xml"))
	assert.Contains(t, out, "[WARNING] ")
	assert.Contains(t, out, "[INFO] Found 1 execution configurations")
}

func TestExecuteAppliesEnvFile(t *testing.T) {
	p := newWorkspace(t)
	p.installGradlew(t)
	p.writeConfig(t, "user-service", runConfigXML(map[string]string{"DB_HOST": "xml-host", "DB_PORT": "5432"}, "printEnv"))
	envFile := filepath.Join(t.TempDir(), "local.env")
	require.NoError(t, os.WriteFile(envFile, []byte("DB_HOST=file-host\n"), 0o600))

	err := p.orch.Execute(context.Background(), Options{Service: "user-service", EnvFile: envFile})
	require.NoError(t, err)
	assert.Contains(t, p.out.String(), "DB_HOST=file-host DB_PORT=5432")
}

func TestExecuteEnvFileMissing(t *testing.T) {
	p := newWorkspace(t)
	p.installGradlew(t)
	p.writeConfig(t, "user-service", runConfigXML(nil, "build"))
	missing := filepath.Join(t.TempDir(), "missing.env")

	err := p.orch.Execute(context.Background(), Options{Service: "user-service", EnvFile: missing})
	requireExit(t, err, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, p.invocations(t))

	// named only in the config file: skipped
	p.orch.cfg.EnvFile = missing
	require.NoError(t, p.orch.Execute(context.Background(), Options{Service: "user-service"}))
	assert.Equal(t, []string{"build"}, p.invocations(t))
}

func TestExecuteDryRunWithLauncherOverride(t *testing.T) {
	p := newWorkspace(t)
	p.orch.cfg.Launcher = "/opt/gradle/bin/gradle"
	p.writeConfig(t, "trip-service", runConfigXML(nil, "clean", "bootRun"))

	err := p.orch.Execute(context.Background(), Options{Service: "trip-service", DryRun: true})
	require.NoError(t, err)

	out := p.out.String()
	assert.Contains(t, out, "[CMD] Command: /opt/gradle/bin/gradle bootRun")
	assert.Contains(t, out, "[DIR] Working directory: "+p.root)

	recs, err := p.store.Recent(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestHistory(t *testing.T) {
	p := newWorkspace(t)
	p.installGradlew(t)
	p.writeConfig(t, "user-service", runConfigXML(nil, "build"))
	require.NoError(t, p.orch.Execute(context.Background(), Options{Service: "user-service"}))
	p.out.Reset()

	require.NoError(t, p.orch.History(context.Background(), "user-service", 5))
	out := p.out.String()
	assert.Contains(t, out, "STARTED\tSERVICE\tTASK")
	assert.Contains(t, out, "\tuser-service\tbuild\tsucceeded\t0\t")

	p.out.Reset()
	require.NoError(t, p.orch.History(context.Background(), "ai-service", 5))
	assert.Contains(t, p.out.String(), "[INFO] No task executions recorded")
}

func TestHistoryDisabled(t *testing.T) {
	o := NewOrchestrator(DefaultConfig(), console.New(&bytes.Buffer{}, false), nil, nil)
	assert.True(t, eris.Is(o.History(context.Background(), "", 5), ErrHistoryDisabled))
	assert.NoError(t, o.Health(context.Background()))
}
