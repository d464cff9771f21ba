package database

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client, err := ConnectRedis("redis://"+server.Addr()+"/0", "Auto Eval API")
	require.NoError(t, err)
	defer client.Close()
	require.Equal(t, "auto-eval-api", client.Options().ClientName)
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
}

func TestConnectRedisErrors(t *testing.T) {
	_, err := ConnectRedis("", "autoeval")
	require.Error(t, err)

	_, err = ConnectRedis("not a url", "autoeval")
	require.Error(t, err)

	server, err := miniredis.Run()
	require.NoError(t, err)
	addr := server.Addr()
	server.Close()

	_, err = ConnectRedis("redis://"+addr, "autoeval")
	require.Error(t, err)
}
