package refdata

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource reads reference data from a YAML file:
//
//	tutorials:
//	  - title: Dice rolls
//	    description: Rolling dice in chat
//	    link: /tutorials/dice
//	    tags: [dice, basics]
//	commands:
//	  - name: roll
//	    description: rolls dice
//	    usage: /roll 2d6
//
// The file is re-read on every refresh, so edits go live without a restart.
type FileSource struct {
	Path string
}

var _ Source = (*FileSource)(nil)

type fileData struct {
	Tutorials []Tutorial `yaml:"tutorials"`
	Commands  []Command  `yaml:"commands"`
}

func (f *FileSource) load() (*fileData, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference data file: %w", err)
	}
	var data fileData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse reference data file: %w", err)
	}
	return &data, nil
}

func (f *FileSource) Tutorials(ctx context.Context) ([]Tutorial, error) {
	data, err := f.load()
	if err != nil {
		return nil, err
	}
	return data.Tutorials, nil
}

func (f *FileSource) Commands(ctx context.Context) ([]Command, error) {
	data, err := f.load()
	if err != nil {
		return nil, err
	}
	return data.Commands, nil
}
