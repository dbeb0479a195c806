// Package cli provides command-line interface utilities.
package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ZacharyZcR/racerpatch/internal/patch"
	"github.com/ZacharyZcR/racerpatch/internal/pe"
	"github.com/fatih/color"
)

// Reporter formats and prints patch results.
type Reporter struct {
	w io.Writer
}

// NewReporter creates a reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// PrintPatch outputs the identified build, arena usage and every applied
// operation.
func (r *Reporter) PrintPatch(report *patch.Report) {
	r.printHeader("RacerPatch 修改报告")

	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintln(r.w, "\n【目标版本】")
	if report.Profile != nil {
		fmt.Fprintf(r.w, "  %-20s: %s\n", "版本", report.Profile.Name)
		fmt.Fprintf(r.w, "  %-20s: 0x%08X\n", "时间戳", report.Profile.Timestamp)
	}

	a := report.Arena
	yellow.Fprintln(r.w, "\n【代码区】")
	fmt.Fprintf(r.w, "  %-20s: %s\n", "基址", a.Base())
	fmt.Fprintf(r.w, "  %-20s: %s / %s\n", "已使用", formatSize(int64(a.Used())), formatSize(int64(a.Capacity())))

	yellow.Fprintf(r.w, "\n【已应用修改】(共 %d 项)\n", len(report.Results))
	if len(report.Results) == 0 {
		fmt.Fprintln(r.w, "  未应用任何修改")
		return
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	for i, res := range report.Results {
		green.Fprintf(r.w, "  %3d. %-10s ", i+1, res.Name)
		if res.Used == 0 {
			gray.Fprintln(r.w, "(仅修改数据)")
			continue
		}
		fmt.Fprintf(r.w, "%s  %s\n", res.Start, formatSize(int64(res.Used)))
	}
}

// PrintLayout outputs the header summary, section table and checksum of
// an image file.
func (r *Reporter) PrintLayout(info *pe.Info) {
	r.printBasicInfo(info)
	r.printSections(info.Sections)
}

// PrintDump reports the textures written by a dump run.
func (r *Reporter) PrintDump(label string, count int, dir string) {
	green := color.New(color.FgGreen)
	green.Fprintf(r.w, "  %-10s %d 个纹理 -> %s\n", label, count, dir)
}

func (r *Reporter) printHeader(title string) {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintln(r.w, "\n╔════════════════════════════════════════╗")
	cyan.Fprintf(r.w, "║ %-38s ║\n", title)
	cyan.Fprintln(r.w, "╚════════════════════════════════════════╝")
}

func (r *Reporter) printBasicInfo(info *pe.Info) {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintln(r.w, "\n【基本信息】")

	fmt.Fprintf(r.w, "  %-20s: %s\n", "文件路径", info.FilePath)
	fmt.Fprintf(r.w, "  %-20s: %s\n", "文件大小", formatSize(info.FileSize))
	fmt.Fprintf(r.w, "  %-20s: %s\n", "架构", info.Architecture)
	fmt.Fprintf(r.w, "  %-20s: %s\n", "子系统", info.Subsystem)
	fmt.Fprintf(r.w, "  %-20s: 0x%X\n", "入口点", info.EntryPoint)
	fmt.Fprintf(r.w, "  %-20s: 0x%X\n", "镜像基址", info.ImageBase)
	fmt.Fprintf(r.w, "  %-20s: %s\n", "镜像大小", formatSize(int64(info.SizeOfImage)))

	fmt.Fprintf(r.w, "  %-20s: ", "版本")
	if info.Build == "" {
		red := color.New(color.FgRed, color.Bold)
		red.Fprintf(r.w, "未知 (时间戳 0x%08X)", info.Timestamp)
	} else {
		fmt.Fprint(r.w, info.Build)
	}
	fmt.Fprintln(r.w)

	if info.Checksum != nil {
		fmt.Fprintf(r.w, "  %-20s: ", "校验和")
		if info.Checksum.Stored == 0 {
			gray := color.New(color.FgHiBlack)
			gray.Fprint(r.w, "未设置")
		} else if info.Checksum.Valid {
			green := color.New(color.FgGreen)
			green.Fprintf(r.w, "✓ 有效 (0x%08X)", info.Checksum.Stored)
		} else {
			red := color.New(color.FgRed, color.Bold)
			red.Fprintf(r.w, "✗ 无效 (存储: 0x%08X, 计算: 0x%08X)",
				info.Checksum.Stored, info.Checksum.Computed)
		}
		fmt.Fprintln(r.w)
	}

	if relocs := info.Relocations; relocs != nil {
		fmt.Fprintf(r.w, "  %-20s: ", "重定位")
		if relocs.Rebasable() {
			red := color.New(color.FgRed, color.Bold)
			red.Fprintf(r.w, "可重定位 (%d 块, %d 项)", relocs.Blocks, relocs.Entries)
		} else {
			fmt.Fprintf(r.w, "固定基址 (%d 块)", relocs.Blocks)
		}
		fmt.Fprintln(r.w)
	}
}

func (r *Reporter) printSections(sections []pe.SectionInfo) {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintf(r.w, "\n【节区信息】(共 %d 个)\n", len(sections))

	if len(sections) == 0 {
		fmt.Fprintln(r.w, "  未发现节区")
		return
	}

	fmt.Fprintln(r.w, strings.Repeat("-", 100))
	fmt.Fprintf(r.w, "  %-10s %-12s %-15s %-12s %-15s %-8s %-12s\n",
		"名称", "虚拟地址", "虚拟大小", "文件偏移", "原始大小", "权限", "特征")
	fmt.Fprintln(r.w, strings.Repeat("-", 100))

	for _, s := range sections {
		// The appended arena is the only RWX section in a patched image.
		permColor := color.New(color.FgWhite)
		if s.Permissions == "RWX" {
			permColor = color.New(color.FgRed, color.Bold)
		} else if strings.Contains(s.Permissions, "X") {
			permColor = color.New(color.FgYellow)
		}

		fmt.Fprintf(r.w, "  %-10s 0x%08X   %-15s 0x%08X   %-15s ",
			s.Name,
			s.VirtualAddress,
			formatSize(int64(s.VirtualSize)),
			s.Offset,
			formatSize(int64(s.Size)),
		)
		permColor.Fprintf(r.w, "%-8s", s.Permissions)
		fmt.Fprintf(r.w, " 0x%08X\n", s.Characteristics)
	}
	fmt.Fprintln(r.w, strings.Repeat("-", 100))
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
