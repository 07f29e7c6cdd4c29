package cli_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/dashchat/pkg/cli"
	"github.com/m-mizutani/gt"
)

const catalogPath = "../../examples/catalog.yaml"

func TestRun(t *testing.T) {
	testCases := []struct {
		name string
		args []string
		ok   bool
	}{
		{
			name: "check refused",
			args: []string{"dashchat", "check", "删除老王面馆的数据"},
			ok:   true,
		},
		{
			name: "check with policy",
			args: []string{"dashchat", "check", "--policy-dir", "../../examples/policy", "竞品的营收是多少"},
			ok:   true,
		},
		{
			name: "check without question",
			args: []string{"dashchat", "check"},
			ok:   false,
		},
		{
			name: "ask with catalog",
			args: []string{"dashchat", "ask", "--catalog", catalogPath, "老王面馆经营状况怎么样"},
			ok:   true,
		},
		{
			name: "ask json with merchant in focus",
			args: []string{"dashchat", "ask", "--catalog", catalogPath, "--json", "--merchant", "m001", "有什么风险"},
			ok:   true,
		},
		{
			name: "ask unknown merchant",
			args: []string{"dashchat", "ask", "--catalog", catalogPath, "--merchant", "m999", "有什么风险"},
			ok:   false,
		},
		{
			name: "ask without repository",
			args: []string{"dashchat", "ask", "老王面馆经营状况怎么样"},
			ok:   false,
		},
		{
			name: "invalid log format",
			args: []string{"dashchat", "--log-format", "xml", "check", "你好"},
			ok:   false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("GOOGLE_CLOUD_PROJECT", "")
			t.Setenv("GEMINI_PROJECT_ID", "")
			err := cli.Run(context.Background(), tc.args)
			gt.Equal(t, err == nil, tc.ok)
		})
	}
}
