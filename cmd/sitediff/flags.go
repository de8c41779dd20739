package main

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sznuper/sitediff/internal/config"
)

var durationType = reflect.TypeOf(config.Duration(0))

// registerOptionFlags adds a persistent --flag for every field in config.Options,
// deriving the flag name from the yaml struct tag (snake_case → kebab-case).
func registerOptionFlags(cmd *cobra.Command) {
	t := reflect.TypeOf(config.Options{})
	for i := range t.NumField() {
		f := t.Field(i)
		yamlTag := f.Tag.Get("yaml")
		flagName := strings.ReplaceAll(yamlTag, "_", "-")
		usage := "override " + yamlTag
		switch {
		case f.Type == durationType:
			cmd.PersistentFlags().Duration(flagName, 0, usage)
		case f.Type.Kind() == reflect.Bool:
			cmd.PersistentFlags().Bool(flagName, false, usage)
		case f.Type.Kind() == reflect.Int:
			cmd.PersistentFlags().Int(flagName, 0, usage)
		default:
			cmd.PersistentFlags().String(flagName, "", usage)
		}
	}
}

// applyOptionFlags overlays CLI flag values onto the config. Only flags
// explicitly set by the user are applied.
func applyOptionFlags(cmd *cobra.Command, cfg *config.Config) error {
	t := reflect.TypeOf(cfg.Options)
	v := reflect.ValueOf(&cfg.Options).Elem()
	flags := cmd.Flags()
	for i := range t.NumField() {
		f := t.Field(i)
		flagName := strings.ReplaceAll(f.Tag.Get("yaml"), "_", "-")
		if !flags.Changed(flagName) {
			continue
		}
		switch {
		case f.Type == durationType:
			val, err := flags.GetDuration(flagName)
			if err != nil {
				return err
			}
			v.Field(i).Set(reflect.ValueOf(config.Duration(val)))
		case f.Type.Kind() == reflect.Bool:
			val, err := flags.GetBool(flagName)
			if err != nil {
				return err
			}
			v.Field(i).SetBool(val)
		case f.Type.Kind() == reflect.Int:
			val, err := flags.GetInt(flagName)
			if err != nil {
				return err
			}
			v.Field(i).SetInt(int64(val))
		case f.Type.Kind() == reflect.String:
			val, err := flags.GetString(flagName)
			if err != nil {
				return err
			}
			v.Field(i).SetString(val)
		default:
			return fmt.Errorf("--%s: unsupported option type %s", flagName, f.Type)
		}
	}
	return nil
}
