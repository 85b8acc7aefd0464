package clicmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCmd_ExecutesWithoutRequiringAClient(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})

	require.NoError(t, rootCmd.Execute())
}
