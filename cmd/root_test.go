package cmd

import "testing"

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "migrate": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestPersistentFlags(t *testing.T) {
	for _, name := range []string{"verbose", "json-log"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag %q not defined", name)
		}
	}
}
