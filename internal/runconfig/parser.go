// Package runconfig reads IntelliJ run configuration files
// (<service>/.run/<service>.run.xml) and extracts the Gradle task list and the
// environment they are run with.
package runconfig

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/phonebill/runcfg/pkg/api"
	"github.com/rotisserie/eris"
)

// ConfigurationType is the run configuration type runcfg understands.
const ConfigurationType = "GradleRunConfiguration"

var (
	// ErrConfigNotFound is returned when a service has no run configuration file.
	ErrConfigNotFound = eris.New("run configuration not found")
	// ErrNoGradleConfiguration is returned for files without a Gradle run configuration.
	ErrNoGradleConfiguration = eris.New("no Gradle configuration found")
)

// ParseError reports a malformed run configuration file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("XML parsing error in %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Path returns the conventional location of a service's run configuration.
func Path(root, service string) string {
	return filepath.Join(root, service, ".run", service+".run.xml")
}

// ParseFile reads and parses a single run configuration file. It returns
// nil without error when the file defines neither env vars nor tasks.
func ParseFile(path, service string) (*api.RunConfiguration, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil, eris.Wrapf(ErrConfigNotFound, "cannot find run configuration: %s", path)
		}
		return nil, eris.Wrapf(err, "error reading %s", path)
	}

	cfg, err := Parse(bytes.NewReader(content), service)
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			perr.Path = path
			return nil, perr
		}
		return nil, eris.Wrap(err, path)
	}

	if cfg != nil {
		cfg.SourcePath = path
	}
	return cfg, nil
}

// expectEOF rejects anything but whitespace, comments and processing
// instructions after the document element.
func expectEOF(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst:
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return eris.Errorf("junk after document element: line %d", inputLine(dec))
			}
		default:
			return eris.Errorf("junk after document element: line %d", inputLine(dec))
		}
	}
}

func inputLine(dec *xml.Decoder) int {
	line, _ := dec.InputPos()
	return line
}

// Parse extracts a run configuration from an XML document.
func Parse(r io.Reader, service string) (*api.RunConfiguration, error) {
	var doc node
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Err: err}
	}
	if err := expectEOF(dec); err != nil {
		return nil, &ParseError{Err: err}
	}

	conf := doc.findDescendant("configuration", "type", ConfigurationType)
	if conf == nil {
		return nil, ErrNoGradleConfiguration
	}

	cfg := &api.RunConfiguration{
		Service: service,
		Env:     map[string]string{},
		Tasks:   []string{},
	}

	if envOpt := conf.findDescendant("option", "name", "env"); envOpt != nil {
		if m := envOpt.child("map"); m != nil {
			for _, entry := range m.children("entry") {
				key, value := entry.attr("key"), entry.attr("value")
				if key != "" && value != "" {
					if _, dup := cfg.Env[key]; !dup {
						cfg.EnvOrder = append(cfg.EnvOrder, key)
					}
					cfg.Env[key] = value
				}
			}
		}
	}

	if tasksOpt := conf.findDescendant("option", "name", "taskNames"); tasksOpt != nil {
		if list := tasksOpt.child("list"); list != nil {
			for _, opt := range list.children("option") {
				if v := opt.attr("value"); v != "" {
					cfg.Tasks = append(cfg.Tasks, v)
				}
			}
		}
	}

	if cfg.Empty() {
		return nil, nil
	}
	return cfg, nil
}
