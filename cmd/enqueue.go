package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"brokerCtl/internal/config"
	"brokerCtl/internal/model"
	"brokerCtl/internal/storage"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func EnqueueCmd(store *storage.Store, cfg *config.Config) *cobra.Command {
	var file string

	enqueueCmd := &cobra.Command{
		Use:   "enqueue -f <tasks.yaml>",
		Short: "Run a batch of tasks from a YAML or JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if file == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(file)
			}
			if err != nil {
				return fmt.Errorf("read task file: %w", err)
			}

			descs, err := decodeTasks(data)
			if err != nil {
				return err
			}
			if len(descs) == 0 {
				return fmt.Errorf("no tasks in %s", file)
			}

			_, err = runTasks(cmd.Context(), cmd.OutOrStdout(), store, cfg, descs)
			return err
		},
	}

	enqueueCmd.Flags().StringVarP(&file, "file", "f", "", "Task file, or - for stdin")
	enqueueCmd.MarkFlagRequired("file")
	return enqueueCmd
}

// decodeTasks accepts either a list of descriptors or a document with a
// top-level "tasks" list. JSON input parses as YAML.
func decodeTasks(data []byte) ([]model.TaskDescriptor, error) {
	var doc struct {
		Tasks []model.TaskDescriptor `yaml:"tasks"`
	}
	var list []model.TaskDescriptor

	if err := yaml.Unmarshal(data, &list); err != nil {
		var typeErr *yaml.TypeError
		if !errors.As(err, &typeErr) {
			return nil, fmt.Errorf("invalid task file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid task file: %w", err)
		}
		list = doc.Tasks
	}

	for i := range list {
		list[i] = list[i].Normalize()
	}
	return list, nil
}
