package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// setting is one config key. The table below drives defaults, the generated
// config file and `arq config show`.
type setting struct {
	key  string
	doc  string
	def  func(stateDir string) any
	save bool // written uncommented by `config init`
}

var settings = []setting{
	{key: "state_dir", doc: "State directory for the database and watcher PID file",
		def: func(dir string) any { return dir }},
	{key: "db_path", doc: "SQLite database path",
		def: func(dir string) any { return filepath.Join(dir, "arq.db") }},
	{key: "backend.url", doc: "Base URL of the analysis backend", save: true,
		def: func(string) any { return "http://localhost:5000" }},
	{key: "notify.duration", doc: "How long a notification stays visible", save: true,
		def: func(string) any { return 5 * time.Second }},
	{key: "upload.concurrency", doc: "Files uploaded at the same time", save: true,
		def: func(string) any { return 4 }},
	{key: "assume_yes", doc: "Answer yes to delete and clear confirmations", save: true,
		def: func(string) any { return false }},
}

// envVar is the environment variable viper binds for key.
func (s setting) envVar() string {
	return "ARQ_" + strings.ToUpper(strings.ReplaceAll(s.key, ".", "_"))
}

// setDefaults registers every setting's default value.
func setDefaults(stateDir string) {
	for _, s := range settings {
		viper.SetDefault(s.key, s.def(stateDir))
	}
}

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "arq"), nil
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage arq configuration.

Every key can also be set through its ARQ_* environment variable, for
example ARQ_BACKEND_URL. Running bare 'arq config' is the same as
'arq config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

func init() {
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file holding the current values",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return configInitRun() },
	}
	initCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")

	configCmd.AddCommand(initCmd,
		&cobra.Command{
			Use:   "show",
			Short: "Show effective configuration with sources",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return configShowRun() },
		},
		&cobra.Command{
			Use:   "edit",
			Short: "Open the config file in $EDITOR",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, args []string) error { return configEditRun() },
		},
	)
	rootCmd.AddCommand(configCmd)
}

// renderConfig builds the config file from the effective values. Settings
// not marked save are kept as comments so their defaults keep following
// state_dir.
func renderConfig() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	var commented []string
	for _, s := range settings {
		if !s.save {
			commented = append(commented, fmt.Sprintf("%s\n%s: %v", s.doc, s.key, viper.Get(s.key)))
			continue
		}
		value := viper.Get(s.key)
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		var v yaml.Node
		if err := v.Encode(value); err != nil {
			return nil, fmt.Errorf("encode %s: %w", s.key, err)
		}
		parent, name := mappingFor(root, s.key)
		parent.Content = append(parent.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name, HeadComment: s.doc}, &v)
	}

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: strings.Join(append([]string{"arq configuration", "See `arq config show` for effective values and sources."}, commented...), "\n"),
		Content:     []*yaml.Node{root},
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mappingFor returns the mapping node that holds the last segment of a
// dotted key, creating intermediate mappings under root.
func mappingFor(root *yaml.Node, key string) (*yaml.Node, string) {
	parts := strings.Split(key, ".")
	m := root
	for _, part := range parts[:len(parts)-1] {
		child := lookupChild(m, part)
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part}, child)
		}
		m = child
	}
	return m, parts[len(parts)-1]
}

func lookupChild(m *yaml.Node, name string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == name {
			return m.Content[i+1]
		}
	}
	return nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	data, err := renderConfig()
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
	} else {
		if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
		ui.Success("Config file created: %s", cfgPath)
	}
	fmt.Fprintln(ui.Out)
	_, _ = ui.Out.Write(data)
	return nil
}

// fileDocument parses the config file. A missing or unparsable file yields nil.
func fileDocument(path string) *yaml.Node {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Content) == 0 {
		return nil
	}
	return doc.Content[0]
}

// source reports where the effective value of s comes from.
func (s setting) source(file *yaml.Node) string {
	if _, ok := os.LookupEnv(s.envVar()); ok {
		return "env: " + s.envVar()
	}
	m := file
	for _, part := range strings.Split(s.key, ".") {
		if m = lookupChild(m, part); m == nil {
			return "default"
		}
	}
	return "file"
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	file := fileDocument(cfgPath)
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}

	table := ui.Table([]string{"Key", "Value", "Source"})
	for _, s := range settings {
		_ = table.Append([]string{s.key, fmt.Sprint(viper.Get(s.key)), s.source(file)})
	}
	return table.Render()
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return errors.New("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config file not found: %s (run 'arq config init' first)", cfgPath)
	}
	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	c := exec.Command(editor, cfgPath)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	return c.Run()
}
