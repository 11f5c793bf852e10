package util

import (
	"testing"
	"time"

	"github.com/ValentinKolb/dClient/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	wrapped := WrapString("a b c")
	assert.Equal(t, "a b c", wrapped)

	long := WrapString("aaaaaaaaaa bbbbbbbbbb cccccccccc dddddddddd eeeeeeeeee ffffffffff")
	for _, line := range splitLines(long) {
		assert.LessOrEqual(t, len(line), Wrap)
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, c := range s {
		if c == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}

func TestGetClientConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "test"}
	SetupRPCClientFlags(cmd)
	require.NoError(t, cmd.PersistentFlags().Parse([]string{
		"--urls", "http://a:8080/, http://b:8080",
		"--database", "shop",
		"--read-balance", "fastest",
		"--request-timeout", "3s",
		"--max-retries", "1",
		"--no-cache",
	}))
	require.NoError(t, viper.BindPFlags(cmd.PersistentFlags()))

	conf, err := GetClientConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a:8080", "http://b:8080"}, conf.Urls)
	assert.Equal(t, "shop", conf.Database)
	assert.Equal(t, common.ReadBalanceFastestNode, conf.ReadBalanceBehavior)
	assert.Equal(t, 3*time.Second, conf.RequestTimeout)
	assert.Equal(t, 1, conf.MaxRetryAttempts)
	assert.True(t, conf.Cache.Disabled)
	assert.Equal(t, 250*time.Millisecond, conf.Backoff.InitialInterval)
}

func TestGetClientConfigFromEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("DCLIENT_URLS", "http://env:8080")
	t.Setenv("DCLIENT_READ_BALANCE", "roundrobin")

	cmd := &cobra.Command{Use: "test"}
	SetupRPCClientFlags(cmd)
	require.NoError(t, viper.BindPFlags(cmd.PersistentFlags()))
	InitClientConfig()

	conf, err := GetClientConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://env:8080"}, conf.Urls)
	assert.Equal(t, common.ReadBalanceRoundRobin, conf.ReadBalanceBehavior)
}

func TestGetClientConfigInvalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "test"}
	SetupRPCClientFlags(cmd)
	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--read-balance", "random"}))
	require.NoError(t, viper.BindPFlags(cmd.PersistentFlags()))

	_, err := GetClientConfig()
	assert.Error(t, err)

	require.NoError(t, cmd.PersistentFlags().Set("read-balance", "none"))
	require.NoError(t, cmd.PersistentFlags().Set("urls", "localhost:8080"))
	_, err = GetClientConfig()
	assert.Error(t, err, "urls need a scheme")
}
