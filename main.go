/**
 * aheadlib
 * Copyright (c) 2026, The aheadlib Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 * @file main.go
 * @author The aheadlib Authors
 * @date 10/17/2026
 */

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"aheadlib/pkg/config"
	"aheadlib/pkg/generate"
	"aheadlib/pkg/pe"
	"aheadlib/pkg/proxy"
)

var errHelp = errors.New("help requested")

// options is the parsed command line.
type options struct {
	request generate.Request
	verbose bool
}

// parseArgs reads `<target> <dll> <out> [flags]`. Flags may appear anywhere
// and take their value either as the next argument or after '='.
func parseArgs(args []string, cfg *config.Config) (*options, error) {
	opts := &options{verbose: cfg.Verbose}
	mode, name, path, asm := cfg.OriginMode, cfg.OriginName, cfg.OriginPath, cfg.Asm

	var positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positional = append(positional, arg)
			continue
		}

		flag, value, hasValue := strings.Cut(arg, "=")
		takeValue := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(args) {
				return "", errors.Errorf("flag %s requires a value", flag)
			}
			i++
			return args[i], nil
		}

		var err error
		switch flag {
		case "-h", "-help", "--help":
			return nil, errHelp
		case "-v", "--verbose":
			opts.verbose = true
			if hasValue {
				if opts.verbose, err = strconv.ParseBool(value); err != nil {
					return nil, errors.Errorf("invalid value %q for %s", value, flag)
				}
			}
		case "--origin-mode":
			mode, err = takeValue()
		case "--origin-name":
			name, err = takeValue()
		case "--origin-path":
			path, err = takeValue()
		case "--asm":
			asm, err = takeValue()
		default:
			return nil, errors.Errorf("unknown flag %s", flag)
		}
		if err != nil {
			return nil, err
		}
	}

	if len(positional) != 3 {
		return nil, errors.Errorf("expected <target> <dll_path> <output_dir>, got %d argument(s)", len(positional))
	}

	target, err := generate.ParseTarget(positional[0])
	if err != nil {
		return nil, err
	}
	origin, err := generate.ParseOrigin(mode, name, path)
	if err != nil {
		return nil, err
	}
	dialects, err := proxy.ParseDialects(asm)
	if err != nil {
		return nil, err
	}

	opts.request = generate.Request{
		Target:    target,
		DllPath:   positional[1],
		OutputDir: positional[2],
		Origin:    origin,
		Dialects:  dialects,
	}
	return opts, nil
}

// exportTable renders the exports sorted by ordinal.
func exportTable(exports *pe.DllExports) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Ordinal", "Name", "Forwarder"})
	for _, exp := range exports.SortedByOrdinal() {
		name := exp.Name
		if exp.IsNoname() {
			name = "(noname)"
		}
		if len(exp.Aliases) > 0 {
			name += " (also " + strings.Join(exp.Aliases, ", ") + ")"
		}
		t.AppendRow(table.Row{exp.Ordinal, name, exp.Forwarder})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d export(s)", len(exports.Exports)), ""})
	return t.Render()
}

func help() {
	fmt.Println("Generates the source of a proxy DLL that forwards every export of an existing DLL.")
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Println("   ", filepath.Base(os.Args[0]), "<target> <dll_path> <output_dir> [flags]")
	fmt.Println("Targets:")
	fmt.Println("   ", "source", "\t", "C source, trampolines and .def file")
	fmt.Println("   ", "vs2022", "\t", "source plus a Visual Studio 2022 solution (.sln)")
	fmt.Println("   ", "vs2026", "\t", "source plus a Visual Studio 2026 solution (.slnx)")
	fmt.Println("   ", "cmake", "\t", "source plus CMakeLists.txt")
	fmt.Println("Example:")
	if runtime.GOOS == "windows" {
		fmt.Println("   ", filepath.Base(os.Args[0]), "vs2022 C:\\Windows\\System32\\version.dll out --origin-mode samedir")
	} else {
		fmt.Println("   ", filepath.Base(os.Args[0]), "cmake ./version.dll ./out --origin-mode samedir")
	}
	fmt.Println("")
	fmt.Println("Flags:")
	fmt.Println("   ", "--origin-mode", "\t", "system | samedir[:<name>] | custom:<path> (default system)")
	fmt.Println("   ", "--origin-name", "\t", "original DLL name for samedir mode (default <name>_orig.dll)")
	fmt.Println("   ", "--origin-path", "\t", "original DLL path for custom mode")
	fmt.Println("   ", "--asm", "\t\t", "comma separated trampoline dialects: masm, gas")
	fmt.Println("   ", "-v, --verbose", "\t", "debug logging and the export table")
	fmt.Println("   ", "-h, --help", "\t", "display help information")
	fmt.Println("")
	fmt.Println("Defaults are read from the environment and .env:")
	fmt.Println("   ", strings.Join([]string{config.EnvOriginMode, config.EnvOriginName, config.EnvOriginPath, config.EnvAsm, config.EnvVerbose}, ", "))
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Error(err)
		os.Exit(2)
	}

	opts, err := parseArgs(os.Args[1:], cfg)
	if err == errHelp {
		help()
		os.Exit(0)
	}
	if err != nil {
		log.Error(err)
		help()
		os.Exit(2)
	}

	if opts.verbose {
		log.SetLevel(log.DebugLevel)
	}

	if _, ok := opts.request.Origin.(proxy.SystemDir); ok {
		if dir := systemDirectory(); dir != "" {
			log.Debugf("Original resolves to %s", filepath.Join(dir, filepath.Base(opts.request.DllPath)))
		}
	}

	result, err := generate.Generate(opts.request)
	if result != nil && result.Exports != nil && opts.verbose {
		fmt.Println(exportTable(result.Exports))
	}
	if err != nil {
		log.Error(err)
		if result != nil && len(result.Written) > 0 {
			log.Warnf("%d file(s) were written before the failure", len(result.Written))
		}
		os.Exit(1)
	}

	fmt.Printf("Generated %d file(s):\n", len(result.Written))
	for _, path := range result.Written {
		fmt.Println("   ", path)
	}
}
