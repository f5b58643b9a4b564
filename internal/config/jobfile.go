package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"geoetl/internal/etl"
	"geoetl/internal/service"
)

// JobFile is the on-disk YAML form of a sync job:
//
//	name: parcels
//	source:
//	  type: shapefile
//	  config:
//	    glob: /data/parcels/*.zip
//	    definition: [NAME, {name: POP, type: number}]
//	target:
//	  driver: postgres
//	  host: db.internal
//	  database: gis
//	  username: loader
//	  secretKey: gis-loader
//	  table: parcels
//	syncMode: replace
//	trigger:
//	  type: schedule
//	  config: "0 3 * * *"
type JobFile struct {
	Name   string `yaml:"name"`
	Source struct {
		Type   string         `yaml:"type"`
		Config map[string]any `yaml:"config"`
	} `yaml:"source"`
	Target   etl.Target `yaml:"target"`
	SyncMode string     `yaml:"syncMode"`
	Trigger  struct {
		Type   string `yaml:"type"`
		Config string `yaml:"config"`
	} `yaml:"trigger"`
	Enabled *bool `yaml:"enabled"` // nil means enabled
}

// LoadJobFile reads and decodes a YAML job file. Unknown keys are rejected.
func LoadJobFile(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	return ParseJobFile(data)
}

// ParseJobFile decodes YAML job bytes.
func ParseJobFile(data []byte) (*JobFile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f JobFile
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}
	return &f, nil
}

// Input converts the file into a service job input.
func (f *JobFile) Input() service.CreateETLJobInput {
	enabled := true
	if f.Enabled != nil {
		enabled = *f.Enabled
	}
	return service.CreateETLJobInput{
		Name:          f.Name,
		SourceType:    f.Source.Type,
		SourceConfig:  f.Source.Config,
		Target:        f.Target,
		SyncMode:      f.SyncMode,
		TriggerType:   f.Trigger.Type,
		TriggerConfig: f.Trigger.Config,
		Enabled:       enabled,
	}
}

// Job validates the file and returns the job it describes, without storing it.
func (f *JobFile) Job() (*etl.SyncJob, error) {
	return service.BuildJob(f.Input())
}
