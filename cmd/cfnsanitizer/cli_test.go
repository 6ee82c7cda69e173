package cfnsanitizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redactyl/cfnsanitizer/internal/config"
	"github.com/redactyl/cfnsanitizer/internal/document"
	"github.com/redactyl/cfnsanitizer/internal/rules"
)

const stackYAML = `AWSTemplateFormatVersion: "2010-09-09"
Resources:
  DB:
    Type: AWS::RDS::DBInstance
    Properties:
      MasterUserPassword: hunter2
      Engine: mysql
`

const cleanYAML = `AWSTemplateFormatVersion: "2010-09-09"
Resources:
  Bucket:
    Type: AWS::S3::Bucket
    Properties:
      BucketName: logs
`

// workspace runs the test inside a fresh directory with an empty global
// config home.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Cleanup(xdg.Reload)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".xdg"))
	xdg.Reload()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

// execute runs the CLI in-process with flags reset to their defaults.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if err != nil {
		return 2
	}
	return 0
}

func TestSanitizeWritesRedactedCopyAndFails(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", stackYAML)

	out, _, err := execute(t, "sanitize", "--no-audit-log", "--no-color", ".")
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "rds_master_password")
	assert.Contains(t, out, "Templates processed: 1")
	assert.Contains(t, out, "Values redacted: 1")

	b, err := os.ReadFile(filepath.Join(defaultOutDir, "template.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "<REDACTED:rds_master_password>")
	assert.NotContains(t, string(b), "hunter2")
	assert.Contains(t, string(b), "Engine: mysql")

	orig, err := os.ReadFile("template.yaml")
	require.NoError(t, err)
	assert.Equal(t, stackYAML, string(orig))
}

func TestSanitizeJSONShapeAndOutputDirSkipped(t *testing.T) {
	workspace(t)
	writeFile(t, "stacks/template.yaml", stackYAML)

	_, _, err := execute(t, "sanitize", "--no-audit-log", ".")
	require.Equal(t, 1, exitCode(err))

	// second run must not pick up the sanitized copies
	out, _, err := execute(t, "sanitize", "--no-audit-log", "--json", ".")
	require.Equal(t, 1, exitCode(err))

	var doc struct {
		RulesDigest string `json:"rules_digest"`
		Documents   []struct {
			Name     string `json:"name"`
			Output   string `json:"output"`
			Findings int    `json:"findings"`
			Redacted int    `json:"redacted"`
		} `json:"documents"`
		Findings []map[string]any `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	assert.Len(t, doc.RulesDigest, 16)
	require.Len(t, doc.Documents, 1)
	assert.Equal(t, "stacks/template.yaml", doc.Documents[0].Name)
	assert.Equal(t, "sanitized_templates/stacks/template.yaml", doc.Documents[0].Output)
	assert.Equal(t, 1, doc.Documents[0].Redacted)

	var rds map[string]any
	for _, f := range doc.Findings {
		if f["rule_id"] == "rds_master_password" {
			rds = f
		}
	}
	require.NotNil(t, rds, "rds finding missing: %s", out)
	assert.Equal(t, "/Resources/DB/Properties/MasterUserPassword", rds["path"])
	assert.Equal(t, "stacks/template.yaml", rds["document"])
	assert.Equal(t, "high", rds["severity"])
	assert.NotContains(t, out, "hunter2")
}

func TestSanitizeCacheReusesAndRepairsOutputs(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", stackYAML)
	out := filepath.Join(defaultOutDir, "template.yaml")

	_, _, err := execute(t, "sanitize", "--no-audit-log", ".")
	require.Equal(t, 1, exitCode(err))
	_, err = os.Stat(".cfnsanitizer_cache.json")
	require.NoError(t, err)

	// a tampered output invalidates the entry and is rewritten
	require.NoError(t, os.WriteFile(out, []byte("tampered\n"), 0o644))
	stdout, _, err := execute(t, "sanitize", "--no-audit-log", "--no-color", ".")
	require.Equal(t, 1, exitCode(err))
	assert.Contains(t, stdout, "Values redacted: 1")
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "<REDACTED:rds_master_password>")

	// a cached run reports the same findings as a fresh one
	cached, _, _ := execute(t, "sanitize", "--no-audit-log", "--json", ".")
	fresh, _, _ := execute(t, "sanitize", "--no-audit-log", "--json", "--no-cache", ".")
	var a, b2 struct {
		Findings []map[string]any `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(cached), &a))
	require.NoError(t, json.Unmarshal([]byte(fresh), &b2))
	assert.Equal(t, b2.Findings, a.Findings)
}

func TestSanitizeSARIF(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", stackYAML)

	out, _, err := execute(t, "sanitize", "--no-audit-log", "--sarif", "--dry-run", ".")
	assert.Equal(t, 1, exitCode(err))
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	assert.Equal(t, "2.1.0", doc["version"])
}

func TestSanitizeDryRunWritesNothing(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", stackYAML)

	_, _, err := execute(t, "sanitize", "--no-audit-log", "--dry-run", ".")
	assert.Equal(t, 1, exitCode(err))
	_, statErr := os.Stat(defaultOutDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSanitizeFormatConversion(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", stackYAML)

	_, _, err := execute(t, "sanitize", "--no-audit-log", "--format", "json", "-o", "out", "template.yaml")
	assert.Equal(t, 1, exitCode(err))

	b, err := os.ReadFile(filepath.Join("out", "template.json"))
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal(b, &v))
	props := v["Resources"].(map[string]any)["DB"].(map[string]any)["Properties"].(map[string]any)
	assert.Equal(t, "<REDACTED:rds_master_password>", props["MasterUserPassword"])
	assert.Contains(t, string(b), `"<REDACTED:rds_master_password>"`)
}

func TestSanitizeFormatConversionKeepsCollidingNames(t *testing.T) {
	workspace(t)
	writeFile(t, "t.yaml", stackYAML)
	writeFile(t, "t.json", `{"AWSTemplateFormatVersion": "2010-09-09", "Resources": {"Q": {"Type": "AWS::SQS::Queue", "Properties": {"QueueName": "only-in-json"}}}}`)

	outputs := func() map[string]string {
		t.Helper()
		out, _, err := execute(t, "sanitize", "--no-audit-log", "--json", "--format", "json", "-o", "out", ".")
		require.Equal(t, 1, exitCode(err))
		var doc struct {
			Documents []struct {
				Name   string `json:"name"`
				Output string `json:"output"`
			} `json:"documents"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
		got := map[string]string{}
		for _, d := range doc.Documents {
			b, err := os.ReadFile(filepath.FromSlash(d.Output))
			require.NoError(t, err, d.Output)
			got[d.Name] = string(b)
		}
		return got
	}

	first := outputs()
	require.Len(t, first, 2)
	assert.Contains(t, first["t.json"], "only-in-json")
	assert.Contains(t, first["t.yaml"], "<REDACTED:rds_master_password>")
	entries, err := os.ReadDir("out")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// cached outputs stay apart on the next run
	assert.Equal(t, first, outputs())
}

func TestSanitizeCleanTemplatePasses(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", cleanYAML)

	out, _, err := execute(t, "sanitize", "--no-audit-log", "--no-color", ".")
	require.NoError(t, err)
	assert.Contains(t, out, "No secrets found")
	_, err = os.Stat(filepath.Join(defaultOutDir, "template.yaml"))
	assert.NoError(t, err)
}

func TestSanitizeBrokenTemplateIsolated(t *testing.T) {
	workspace(t)
	writeFile(t, "a.yaml", cleanYAML)
	writeFile(t, "b.yaml", "Resources: [\n")

	_, errOut, err := execute(t, "sanitize", "--no-audit-log", ".")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, errOut, "failed: b.yaml")

	_, err = os.Stat(filepath.Join(defaultOutDir, "a.yaml"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(defaultOutDir, "b.yaml"))
	assert.True(t, os.IsNotExist(err))
}

func TestSanitizeSkipsNonTemplatesOnWalk(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", cleanYAML)
	writeFile(t, "data.json", `{"name": "not a template"}`)

	out, _, err := execute(t, "sanitize", "--no-audit-log", "--json", ".")
	require.NoError(t, err)
	assert.Contains(t, out, `"template.yaml"`)
	assert.NotContains(t, out, "data.json")
}

func TestSanitizeGitignoreOutput(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", cleanYAML)

	_, _, err := execute(t, "sanitize", "--no-audit-log", "--gitignore-output", ".")
	require.NoError(t, err)
	b, err := os.ReadFile(".gitignore")
	require.NoError(t, err)
	assert.Equal(t, "/sanitized_templates/\n", string(b))
}

func TestSanitizeUnknownRuleID(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", cleanYAML)

	_, _, err := execute(t, "sanitize", "--disable", "no_such_rule", ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown rule id")
}

func TestSanitizeHonoursLocalConfig(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", stackYAML)
	writeFile(t, ".cfnsanitizer.yml", "disable: rds_master_password\noutput_dir: clean\n")

	_, _, err := execute(t, "sanitize", "--no-audit-log", ".")
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join("clean", "template.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "hunter2")
}

func TestBaselineSuppressesAcceptedFindings(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", stackYAML)

	out, _, err := execute(t, "baseline", "update", ".")
	require.NoError(t, err)
	assert.Contains(t, out, "Baseline updated")
	_, err = os.Stat(defaultBaselineFile)
	require.NoError(t, err)

	out, _, err = execute(t, "sanitize", "--no-audit-log", "--no-color", ".")
	require.NoError(t, err)
	assert.Contains(t, out, "No secrets found")

	// accepted findings are still redacted
	b, err := os.ReadFile(filepath.Join(defaultOutDir, "template.yaml"))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "hunter2")
}

func TestAuditHistory(t *testing.T) {
	workspace(t)
	writeFile(t, "template.yaml", stackYAML)

	_, _, err := execute(t, "sanitize", ".")
	require.Equal(t, 1, exitCode(err))

	out, _, err := execute(t, "history", "--json")
	require.NoError(t, err)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &recs), out)
	require.Len(t, recs, 1)
	assert.EqualValues(t, 1, recs[0]["documents"])
	assert.NotContains(t, out, "hunter2")

	out, _, err = execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "TEMPLATES")
}

func TestHistoryEmpty(t *testing.T) {
	workspace(t)
	out, _, err := execute(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded yet.")
}

func TestRulesList(t *testing.T) {
	workspace(t)

	out, _, err := execute(t, "rules", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "parameter_defaults")
	assert.Contains(t, out, "KeyOnlyCatchAll")

	out, _, err = execute(t, "rules", "list", "--json", "--disable", "parameter_defaults")
	require.NoError(t, err)
	var views []ruleView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	def, err := rules.Default()
	require.NoError(t, err)
	assert.Len(t, views, def.Len()-1)
	assert.Equal(t, def.IDs()[0], views[0].ID)
}

func TestRulesValidate(t *testing.T) {
	workspace(t)
	writeFile(t, "good.yaml", "k:\n  keys: [Token]\n  description: token fields\n")
	writeFile(t, "bad.yaml", "k:\n  keys: [Token]\n")

	out, _, err := execute(t, "rules", "validate", "good.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "1 rule(s) OK")

	_, _, err = execute(t, "rules", "validate", "bad.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "description")
	var re *rules.RegistryError
	assert.True(t, errors.As(err, &re))
}

func TestRulesExportRoundTrips(t *testing.T) {
	workspace(t)
	out, _, err := execute(t, "rules", "export")
	require.NoError(t, err)
	set, err := rules.Load([]byte(out))
	require.NoError(t, err)
	def, err := rules.Default()
	require.NoError(t, err)
	assert.Equal(t, def.IDs(), set.IDs())
}

func TestConfigInitAndShow(t *testing.T) {
	workspace(t)

	_, _, err := execute(t, "config", "init", "--preset", "quiet")
	require.NoError(t, err)
	cfg, err := config.LoadFile(config.LocalNames[0])
	require.NoError(t, err)
	require.NotNil(t, cfg.FailOn)
	assert.Equal(t, "high", *cfg.FailOn)
	require.NotNil(t, cfg.Disable)
	assert.Equal(t, "parameter_defaults", *cfg.Disable)

	_, _, err = execute(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out, _, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "fail_on: high")
}

func TestConfigInitTOML(t *testing.T) {
	workspace(t)
	_, _, err := execute(t, "config", "init", "--output", "cfg.toml", "--clean-cdk")
	require.NoError(t, err)
	cfg, err := config.LoadFile("cfg.toml")
	require.NoError(t, err)
	require.NotNil(t, cfg.CleanCDK)
	assert.True(t, *cfg.CleanCDK)
	require.NotNil(t, cfg.OutputDir)
	assert.Equal(t, defaultOutDir, *cfg.OutputDir)
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cfnsanitizer ")
}

func TestUniqueName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "a/t.yaml", uniqueName("a/t.yaml", used))
	assert.Equal(t, "a/t~2.yaml", uniqueName("a/t.yaml", used))
	assert.Equal(t, "a/t~3.yaml", uniqueName("a/t.yaml", used))
	assert.Equal(t, "b.json", uniqueName("b.json", used))

	// a real file already named like a suffixed copy is not overwritten
	used = map[string]bool{"c~2.json": true}
	assert.Equal(t, "c.json", uniqueName("c.json", used))
	assert.Equal(t, "c~3.json", uniqueName("c.json", used))
}

func TestOutputPath(t *testing.T) {
	rel, f := outputPath("a/t.yaml", document.FormatYAML, "")
	assert.Equal(t, "a/t.yaml", rel)
	assert.Equal(t, document.FormatYAML, f)

	rel, f = outputPath("a/t.yaml", document.FormatYAML, document.FormatJSON)
	assert.Equal(t, "a/t.json", rel)
	assert.Equal(t, document.FormatJSON, f)
}

func TestPickHelpers(t *testing.T) {
	local, global := "local", "global"
	assert.Equal(t, "cli", pickString("cli", &local, &global))
	assert.Equal(t, "local", pickString("", &local, &global))
	assert.Equal(t, "global", pickString("", nil, &global))
	assert.Equal(t, "", pickString("", nil, nil))

	f, tr := false, true
	assert.True(t, pickBool(true, &f, nil))
	assert.False(t, pickBool(false, &f, &tr))
	assert.True(t, pickBool(false, nil, &tr))

	n := 4
	assert.Equal(t, 4, pickInt(0, &n, nil))
	assert.Equal(t, []string{"a", "b"}, splitIDs(" a, ,b "))
}
