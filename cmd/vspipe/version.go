package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	vs "github.com/thesyncim/vapoursynth"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the engine version and capabilities",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
}

func runVersion(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()

	c, err := s.api.NewCore(vs.CoreOptions{Threads: s.cfg.Core.Threads})
	if err != nil {
		return err
	}
	defer c.Close()
	info := c.Info()

	var names []string
	for f := vs.FeatureVideo; f <= vs.FeatureScript; f++ {
		if s.api.Supports(f) {
			names = append(names, f.String())
		}
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, info.VersionString)
	fmt.Fprintf(out, "Core R%d\n", info.Core)
	fmt.Fprintf(out, "API %s (engine %s)\n", s.api.Version(), s.api.EngineVersion())
	fmt.Fprintf(out, "Features: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(out, "Threads: %d\n", info.NumThreads)
	return nil
}
