package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusinessDateCmdRejectsBadFlags(t *testing.T) {
	for _, args := range [][]string{
		{"business-date", "--tz", "Mars/Base"},
		{"business-date", "--switch", "25:00"},
		{"business-date", "--at", "tonight"},
	} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(&bytes.Buffer{})
		require.Error(t, cmd.Execute(), args)
	}
}

func TestBusinessDateCmdResolves(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"business-date", "--at", "2026-03-14T19:30:00Z", "--tz", "Asia/Tokyo"})
	require.NoError(t, cmd.Execute())
}
