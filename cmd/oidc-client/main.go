/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package main is the oidc-client command line wallet. It receives verifiable credentials from
// OpenID4VCI issuers.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/eudi-wallet/oidc-client-go/cmd/oidc-client/issuecmd"
	"github.com/eudi-wallet/oidc-client-go/pkg/common/log"
)

func main() {
	rootCmd := &cobra.Command{
		Use: "oidc-client",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	logger := log.New("oidc-client/cli")

	rootCmd.AddCommand(issuecmd.Cmd(os.Stdout))

	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("Failed to run oidc-client: %s", err)
	}
}
