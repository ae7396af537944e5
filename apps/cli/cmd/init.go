package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/hitrun/packages/core/config"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new hitrun project",
	Long: `Initialize a new hitrun project in the current directory.

This creates:
  - hitrun.yaml          - Example project with environments and a flow
  - .hitrun.config.json  - Configuration file

Examples:
  hitrun init
  hitrun init --force`,
	Args: cobra.NoArgs,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing files")
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	projectFile := filepath.Join(cwd, "hitrun.yaml")
	configFile := filepath.Join(cwd, ".hitrun.config.json")

	if !forceInit {
		for _, f := range []string{projectFile, configFile} {
			if _, err := os.Stat(f); err == nil {
				return withCode(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	if err := model.SaveProject(projectFile, sampleProject()); err != nil {
		return fmt.Errorf("failed to create project file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", projectFile)

	if err := config.DefaultConfig().SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nhitrun project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'hitrun run hitrun.yaml --env dev' to execute the example requests.\n")

	return nil
}

// sampleProject logs in, keeps the token from the response in a variable
// and reuses it
func sampleProject() *model.Project {
	env := func(name, uri string) *model.Environment {
		return &model.Environment{
			Info:   model.Info{Name: name},
			Server: &model.Server{URI: uri},
			Variables: []model.Property{
				{Name: "user", Value: "demo"},
			},
		}
	}

	login := &model.Request{
		Info:    model.Info{Name: "login", Description: "Exchange credentials for a token"},
		Method:  "POST",
		URL:     "{{baseUri}}/login",
		Headers: []model.Header{{Name: "Content-Type", Value: "application/json"}},
		Payload: `{"user": "{{user}}"}`,
		Flows: []model.Flow{{
			Name:    "keep token",
			Trigger: model.TriggerResponse,
			Actions: []model.Action{{
				Name:      "on success",
				Condition: &model.Condition{Type: model.FromResponse, Source: model.SourceStatus, Operator: model.OpEqual, Value: "200"},
				Steps: model.Steps{
					&model.ReadDataStep{Source: model.DataSource{Type: model.FromResponse, Source: model.SourceBody, Path: "token"}},
					&model.SetVariableStep{Name: "token"},
				},
			}},
		}},
	}

	profile := &model.Request{
		Info:   model.Info{Name: "profile"},
		Method: "GET",
		URL:    "{{baseUri}}/me",
		Authorization: []model.Authorization{{
			Kind:   model.AuthBearer,
			Config: model.AuthConfig{Token: "{{token}}"},
		}},
	}

	p := &model.Project{
		Info: model.Info{Name: "example", Version: "1.0.0"},
		Environments: []*model.Environment{
			env("dev", "http://localhost:3000"),
			env("staging", "https://staging.api.example.com"),
		},
		Items: []*model.Item{
			{Folder: &model.Folder{
				Info:  model.Info{Name: "auth"},
				Items: []*model.Item{{Request: login}, {Request: profile}},
			}},
		},
	}
	model.EnsureKeys(p)
	return p
}
