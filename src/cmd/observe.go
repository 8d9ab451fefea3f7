package cmd

import (
	"github.com/anchornet/observer/src/observe"

	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(observeCmd)
}

var observeCmd = &cobra.Command{
	Use:   "observe",
	Short: "Follow the anchor contract and sync operations to the database",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		controller, err := observe.NewController(conf)
		if err != nil {
			return
		}

		err = controller.Start()
		if err != nil {
			return
		}

		<-applicationCtx.Done()

		controller.StopWait()

		return
	},
}
