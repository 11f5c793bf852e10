package docs

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	etag string

	putCmd = &cobra.Command{
		Use:   "put [id] [json]",
		Short: "Stores a json document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			value := json.RawMessage(args[1])
			if !json.Valid(value) {
				return fmt.Errorf("value is not valid json: %s", args[1])
			}
			newEtag, err := rpcStore.Put(cmd.Context(), id, value, etag)
			if err != nil {
				return err
			}
			fmt.Printf("id=%s, etag=%s\n", id, newEtag)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Reads a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			doc, ok, err := rpcStore.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("id=%s, found=%v, etag=%s, value=%s\n", id, ok, doc.Etag, doc.Value)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [id]",
		Short: "Deletes a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			deleted, err := rpcStore.Delete(cmd.Context(), id, etag)
			if err != nil {
				return err
			}
			fmt.Printf("id=%s, deleted=%t\n", id, deleted)
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [id]",
		Short: "Checks if a document exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			found, err := rpcStore.Has(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("id=%s, found=%t\n", id, found)
			return nil
		},
	}
)

func init() {
	putCmd.Flags().StringVar(&etag, "etag", "", "Only write if the stored document has this etag")
	delCmd.Flags().StringVar(&etag, "etag", "", "Only delete if the stored document has this etag")
}
