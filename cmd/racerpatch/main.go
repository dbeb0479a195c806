// Package main provides the racerpatch CLI tool.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/ZacharyZcR/racerpatch/internal/cli"
	"github.com/ZacharyZcR/racerpatch/internal/config"
	"github.com/ZacharyZcR/racerpatch/internal/logging"
	"github.com/ZacharyZcR/racerpatch/internal/patch"
	"github.com/ZacharyZcR/racerpatch/internal/pe"
	"github.com/ZacharyZcR/racerpatch/internal/profile"
	"github.com/ZacharyZcR/racerpatch/internal/target"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// ErrBackupExists is returned when a backup with different contents is
// already present.
var ErrBackupExists = errors.New("备份文件已存在且内容不同")

// Every supported build is linked at this address and loaded there.
const imageBase target.Address = 0x00400000

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := config.NewFlagSet("racerpatch")
	fs.Usage = func() { printUsage(fs) }

	cfg, err := config.Load(fs, args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		return fail(err)
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fail(err)
	}

	if cfg.DumpTextures != "" {
		err = dump(cfg, log)
	} else {
		err = patchTarget(cfg, log)
	}
	if err != nil {
		return fail(err)
	}
	return 0
}

func fail(err error) int {
	red := color.New(color.FgRed, color.Bold)
	_, _ = red.Fprintf(os.Stderr, "\n错误: %v\n\n", err)
	if errors.Is(err, profile.ErrUnsupportedVersion) {
		return 1
	}
	return 2
}

func patchTarget(cfg *config.Config, log *logrus.Logger) error {
	opts, err := cfg.PatchOptions()
	if err != nil {
		return err
	}

	if cfg.Launch {
		return patchProcess(cfg, opts, log)
	}
	return patchFile(cfg, opts, log)
}

func patchFile(cfg *config.Config, opts patch.Options, log *logrus.Logger) error {
	patcher, err := pe.NewPatcher(cfg.Executable, imageBase, log)
	if err != nil {
		return err
	}
	defer func() { _ = patcher.Close() }()

	patcher.SetLegacyFallback(cfg.LegacyFallback)
	patcher.SetUpdateChecksum(cfg.UpdateChecksum)

	// Only a clean, identified file is backed up.
	if _, err := patcher.Identify(); err != nil {
		return err
	}
	if err := patcher.CheckUnpatched(); err != nil {
		return err
	}
	if err := createBackupIfNeeded(cfg); err != nil {
		return err
	}

	report, err := patch.Patch(patcher, opts, log)
	if err != nil {
		return err
	}
	if err := patcher.Close(); err != nil {
		return fmt.Errorf("关闭文件失败: %w", err)
	}

	reporter := cli.NewReporter(os.Stdout)
	reporter.PrintPatch(report)
	if cfg.ShowLayout {
		if err := printLayout(reporter, cfg.Executable); err != nil {
			return err
		}
	}

	printPatchSuccess(cfg.Executable)
	return nil
}

func patchProcess(cfg *config.Config, opts patch.Options, log *logrus.Logger) error {
	proc, err := target.Launch(cfg.Executable, cfg.Args, log)
	if err != nil {
		return err
	}
	defer func() { _ = proc.Close() }()

	report, err := patch.Patch(patch.NewLiveHost(proc, imageBase, log), opts, log)
	if err != nil {
		return err
	}

	cli.NewReporter(os.Stdout).PrintPatch(report)
	printPatchSuccess(cfg.Executable)
	return nil
}

// dump writes the original font textures and leaves the target unmodified.
func dump(cfg *config.Config, log *logrus.Logger) error {
	var host patch.Host
	if cfg.Launch {
		proc, err := target.Launch(cfg.Executable, cfg.Args, log)
		if err != nil {
			return err
		}
		defer func() { _ = proc.Close() }()
		host = patch.NewLiveHost(proc, imageBase, log)
	} else {
		patcher, err := pe.NewPatcher(cfg.Executable, imageBase, log)
		if err != nil {
			return err
		}
		defer func() { _ = patcher.Close() }()
		patcher.SetLegacyFallback(cfg.LegacyFallback)
		host = patcher
	}
	// Nothing is written, so aborting only releases the target.
	defer func() { _ = host.Abort() }()

	prof, err := host.Identify()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DumpTextures, 0755); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}

	ctx := patch.NewContext(host.Target(), prof, log)
	reporter := cli.NewReporter(os.Stdout)
	for _, t := range prof.Textures {
		n, err := patch.DumpTextureTable(ctx, t, cfg.DumpTextures)
		if err != nil {
			return fmt.Errorf("%s: %w", t.Label, err)
		}
		reporter.PrintDump(t.Label, n, cfg.DumpTextures)
	}
	return nil
}

func printLayout(reporter *cli.Reporter, path string) error {
	reader, err := pe.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	info, err := pe.NewAnalyzer(reader).Analyze()
	if err != nil {
		return err
	}
	reporter.PrintLayout(info)
	return nil
}

func createBackupIfNeeded(cfg *config.Config) error {
	if !cfg.Backup {
		return nil
	}

	backupPath := cfg.Executable + ".bak"
	data, err := os.ReadFile(cfg.Executable)
	if err != nil {
		return fmt.Errorf("创建备份失败: %w", err)
	}

	existing, err := os.ReadFile(backupPath)
	switch {
	case err == nil && bytes.Equal(existing, data):
		green := color.New(color.FgGreen)
		_, _ = green.Printf("✓ 备份已存在: %s\n", backupPath)
		return nil
	case err == nil:
		return fmt.Errorf("%w: %s", ErrBackupExists, backupPath)
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("读取备份失败: %w", err)
	}

	if err := writeNewFile(backupPath, data); err != nil {
		return fmt.Errorf("创建备份失败: %w", err)
	}

	green := color.New(color.FgGreen)
	_, _ = green.Printf("✓ 已创建备份: %s\n", backupPath)
	return nil
}

// writeNewFile writes data to path, failing if path already exists.
func writeNewFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func printPatchSuccess(path string) {
	green := color.New(color.FgGreen, color.Bold)
	fmt.Println()
	_, _ = green.Printf("✓ 修改完成: %s\n", path)
	fmt.Println()
}

func printUsage(fs *pflag.FlagSet) {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Fprintln(os.Stderr, "\nracerpatch - Episode I Racer 高分辨率补丁工具")

	fmt.Fprintln(os.Stderr, "\n用法:")
	fmt.Fprintln(os.Stderr, "  racerpatch [选项] <swep1rcr.exe>             修改文件")
	fmt.Fprintln(os.Stderr, "  racerpatch --launch [选项] [exe] [参数...]   启动游戏并在内存中修改")
	fmt.Fprintln(os.Stderr, "  racerpatch --dump-textures <目录> <exe>      导出原始字体纹理")
	fmt.Fprintln(os.Stderr, "\n选项:")
	fmt.Fprint(os.Stderr, fs.FlagUsages())
	fmt.Fprintln(os.Stderr, "\n所有选项也可通过 racerpatch.yaml 或 RACERPATCH_* 环境变量设置。")
	fmt.Fprintln(os.Stderr)
}
