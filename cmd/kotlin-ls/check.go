package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tomatitito/kotlin-analyzer/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the environment for running the analyzer",
	Long: `Verify that kotlin-ls can start the analyzer in the current
directory: configuration, JDK resolution, and the sidecar command.

This command is safe to run while no server is active; it never speaks
the LSP protocol.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ok := color.New(color.FgGreen).SprintFunc()
	warn := color.New(color.FgYellow).SprintFunc()
	fail := color.New(color.FgRed, color.Bold).SprintFunc()

	root, err := os.Getwd()
	if err != nil {
		return err
	}
	fmt.Printf("Project root: %s\n", root)

	problems := 0

	cfg, err := config.Load(root)
	if err != nil {
		fmt.Printf("%s configuration: %v\n", fail("✗"), err)
		return fmt.Errorf("configuration invalid")
	}
	if hasConfigFile(root) {
		fmt.Printf("%s configuration: kotlin-ls.yml loaded\n", ok("✓"))
	} else {
		fmt.Printf("%s configuration: no kotlin-ls.yml, using defaults\n", warn("•"))
	}

	pctx := cfg.Context(root)

	if stat, err := os.Stat(pctx.JDKHome); err == nil && stat.IsDir() {
		fmt.Printf("%s jdk: %s\n", ok("✓"), pctx.JDKHome)
	} else {
		fmt.Printf("%s jdk: %s not found (set project.jdk_home, %s or JAVA_HOME)\n",
			fail("✗"), pctx.JDKHome, config.EnvJDKHome)
		problems++
	}

	argv := cfg.SidecarCommand(pctx.JDKHome)
	launcher := argv[0]
	if _, err := os.Stat(launcher); err == nil {
		fmt.Printf("%s sidecar launcher: %s\n", ok("✓"), launcher)
	} else if p, err := exec.LookPath(launcher); err == nil {
		fmt.Printf("%s sidecar launcher: %s\n", ok("✓"), p)
	} else {
		fmt.Printf("%s sidecar launcher: %s not found\n", fail("✗"), launcher)
		problems++
	}

	if len(pctx.SourceRoots) == 0 {
		fmt.Printf("%s source roots: none configured\n", warn("•"))
	} else {
		fmt.Printf("%s source roots: %d configured\n", ok("✓"), len(pctx.SourceRoots))
	}
	fmt.Printf("%s classpath entries: %d\n", ok("✓"), len(pctx.Classpath))

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	fmt.Println(ok("environment ready"))
	return nil
}

func hasConfigFile(root string) bool {
	for _, name := range []string{"kotlin-ls.yml", "kotlin-ls.yaml"} {
		if _, err := os.Stat(filepath.Join(root, name)); err == nil {
			return true
		}
	}
	return false
}
