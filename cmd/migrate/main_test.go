package main

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		args []string
		want command
	}{
		{nil, command{name: "up"}},
		{[]string{"up"}, command{name: "up"}},
		{[]string{"DOWN"}, command{name: "down"}},
		{[]string{"version"}, command{name: "version"}},
		{[]string{"force", "3"}, command{name: "force", version: 3}},
	}
	for _, tc := range cases {
		got, err := parseCommand(tc.args)
		if err != nil {
			t.Fatalf("parseCommand(%v): unexpected error %v", tc.args, err)
		}
		if got != tc.want {
			t.Fatalf("parseCommand(%v) = %+v, want %+v", tc.args, got, tc.want)
		}
	}
}

func TestParseCommandRejectsBadInput(t *testing.T) {
	for _, args := range [][]string{
		{"force"},
		{"force", "x"},
		{"force", "-1"},
		{"up", "2"},
		{"drop"},
	} {
		if _, err := parseCommand(args); !errors.Is(err, errUsage) {
			t.Fatalf("parseCommand(%v): expected usage error, got %v", args, err)
		}
	}
}
