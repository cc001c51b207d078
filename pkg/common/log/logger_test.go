/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	module := "oidc-client/test-levels"

	SetLevel(module, DEBUG)
	require.Equal(t, DEBUG, GetLevel(module))

	SetLevel(module, ERROR)
	require.Equal(t, ERROR, GetLevel(module))
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("WARNING")
	require.NoError(t, err)
	require.Equal(t, WARNING, level)

	_, err = ParseLevel("LOUD")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	logger := New("oidc-client/test-new")
	require.NotNil(t, logger)

	require.NotPanics(t, func() {
		logger.Debugf("debug %s", "line")
		logger.Infof("info %d", 1)
	})
}
