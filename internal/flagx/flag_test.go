package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

var serverFlags = []string{"-a", "-g", "-d", "-s", "-k", "-l", "-t", "-o", "-p", "-x", "-m", "-y", "-r"}

func TestFilterArgs_ServerFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "config file flags are left for the json layer",
			args: []string{"-a", ":3001", "-c", "conf.json", "-k", "MASTER", "-config=alt.json"},
			want: []string{"-a", ":3001", "-k", "MASTER"},
		},
		{
			name: "every server flag with a separate value",
			args: []string{
				"-a", ":3001", "-g", ":50051", "-d", "postgres://u:p@db/proxy", "-s", "jwt",
				"-k", "MASTER", "-l", "salt", "-t", "30", "-o", "10",
				"-p", "https://api.torn.com", "-x", "https://www.tornstats.com",
				"-m", "development", "-y", "redis", "-r", "localhost:6379",
			},
			want: []string{
				"-a", ":3001", "-g", ":50051", "-d", "postgres://u:p@db/proxy", "-s", "jwt",
				"-k", "MASTER", "-l", "salt", "-t", "30", "-o", "10",
				"-p", "https://api.torn.com", "-x", "https://www.tornstats.com",
				"-m", "development", "-y", "redis", "-r", "localhost:6379",
			},
		},
		{
			name: "equals form keeps value with embedded equals",
			args: []string{"-s=secret", "-d=host=db user=proxy sslmode=disable"},
			want: []string{"-s=secret", "-d=host=db user=proxy sslmode=disable"},
		},
		{
			name: "unknown flags and their values are dropped",
			args: []string{"--verbose", "-q", "1", "-y", "postgres", "--unknown", "x", "positional"},
			want: []string{"-y", "postgres"},
		},
		{
			name: "flag followed by another flag has no value",
			args: []string{"-m", "-a", ":8080"},
			want: []string{"-m", "-a", ":8080"},
		},
		{
			name: "trailing flag without value is kept",
			args: []string{"-r"},
			want: []string{"-r"},
		},
		{
			name: "test runner flags are ignored",
			args: []string{"-test.v", "-test.run=TestX", "-o", "5"},
			want: []string{"-o", "5"},
		},
		{
			name: "empty input",
			args: []string{},
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, serverFlags)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterArgs_NilArgs(t *testing.T) {
	got := FilterArgs(nil, serverFlags)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestJsonConfigFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "short form among server flags",
			args: []string{"tornproxy", "-a", ":3001", "-c", "server.json", "-y", "redis"},
			want: "server.json",
		},
		{
			name: "long form with equals",
			args: []string{"tornproxy", "-k", "MASTER", "-config=/etc/tornproxy/server.json"},
			want: "/etc/tornproxy/server.json",
		},
		{
			name: "later occurrence wins",
			args: []string{"tornproxy", "-config", "first.json", "-c", "second.json"},
			want: "second.json",
		},
		{
			name: "absent",
			args: []string{"tornproxy", "-a", ":3001", "-d", "postgres://db/proxy"},
			want: "",
		},
		{
			name: "flag without value",
			args: []string{"tornproxy", "-s", "jwt", "-c"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := os.Args
			t.Cleanup(func() { os.Args = orig })

			os.Args = tt.args
			assert.Equal(t, tt.want, JsonConfigFlags())
		})
	}
}
