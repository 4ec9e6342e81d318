package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func NewCreateCmd() *cobra.Command {
	var paramsFile string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a model",
		Long: `Create a model on the server. Without --params the server applies its
built-in default parameters (timestamp field c0, predicted field c1).`,
		Example: `  # Create a model with default parameters
  htmserve-cli create

  # Create from a parameter file (may include "guid", "metrics", "inferenceArgs")
  htmserve-cli create --params model.json

  # Read parameters from stdin
  cat model.json | htmserve-cli create --params -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body interface{}
			if paramsFile != "" {
				data, err := readInput(paramsFile)
				if err != nil {
					return fmt.Errorf("failed to read params: %w", err)
				}
				var decoded map[string]interface{}
				if err := json.Unmarshal(data, &decoded); err != nil {
					return fmt.Errorf("params must be a JSON object: %w", err)
				}
				body = decoded
			}

			var resp map[string]interface{}
			if err := newClient().do("POST", "/models", body, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}

	cmd.Flags().StringVarP(&paramsFile, "params", "p", "", "JSON parameter file (- for stdin)")
	return cmd
}

func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all models",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp []map[string]interface{}
			if err := newClient().do("GET", "/models", nil, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func NewGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <guid>",
		Short: "Show one model's summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]interface{}
			if err := newClient().do("GET", "/models/"+args[0], nil, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func NewRunCmd() *cobra.Command {
	var rowsFile string

	cmd := &cobra.Command{
		Use:   "run <guid>",
		Short: "Run rows through a model",
		Long: `Send a row object or an array of rows to a model and print the
serialized results in order.`,
		Example: `  # Run a single inline row
  echo '{"c0": 100, "c1": 5}' | htmserve-cli run m1 --rows -

  # Run a batch from a file
  htmserve-cli run m1 --rows batch.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(rowsFile)
			if err != nil {
				return fmt.Errorf("failed to read rows: %w", err)
			}
			var body interface{}
			if err := json.Unmarshal(data, &body); err != nil {
				return fmt.Errorf("rows must be a JSON object or array: %w", err)
			}

			var resp []map[string]interface{}
			if err := newClient().do("PUT", "/models/"+args[0], body, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}

	cmd.Flags().StringVarP(&rowsFile, "rows", "r", "-", "JSON rows file (- for stdin)")
	return cmd
}

func NewResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <guid>",
		Short: "Reset a model's sequence state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]interface{}
			if err := newClient().do("POST", "/models/"+args[0]+"/reset", nil, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}

func NewDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <guid>",
		Short: "Delete a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]interface{}
			if err := newClient().do("DELETE", "/models/"+args[0], nil, &resp); err != nil {
				return err
			}
			return printJSON(resp)
		},
	}
}
