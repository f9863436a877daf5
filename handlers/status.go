package handlers

import (
	"fmt"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"gatekeeper/bot"
)

// handleStatus replies with a runtime and host overview embed.
func handleStatus(b *bot.Bot, s *discordgo.Session, i *discordgo.InteractionCreate) {
	cpuCount, _ := cpu.Counts(true)
	cpuPercent, _ := cpu.Percent(0, false)
	vm, _ := mem.VirtualMemory()
	hostInfo, _ := host.Info()

	cpuLoad := "n/a"
	if len(cpuPercent) > 0 {
		cpuLoad = fmt.Sprintf("%.1f%%", cpuPercent[0])
	}
	memLine := "n/a"
	if vm != nil {
		memLine = fmt.Sprintf("%.1f%% (%d MB / %d MB)", vm.UsedPercent, vm.Used/1024/1024, vm.Total/1024/1024)
	}
	osLine, kernel := "n/a", "n/a"
	if hostInfo != nil {
		osLine = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
		kernel = hostInfo.KernelVersion
	}

	embed := &discordgo.MessageEmbed{
		Title: "Status",
		Color: 0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "OS", Value: osLine, Inline: true},
			{Name: "Kernel", Value: kernel, Inline: true},
			{Name: "Go", Value: runtime.Version(), Inline: true},
			{Name: "CPUs", Value: fmt.Sprintf("%d", cpuCount), Inline: true},
			{Name: "CPU load", Value: cpuLoad, Inline: true},
			{Name: "Memory", Value: memLine, Inline: true},
			{Name: "Gateway latency", Value: s.HeartbeatLatency().String(), Inline: true},
			{Name: "Goroutines", Value: fmt.Sprintf("%d", runtime.NumGoroutine()), Inline: true},
			{Name: "Servers", Value: fmt.Sprintf("%d", len(s.State.Guilds)), Inline: true},
			{Name: "Pending captchas", Value: fmt.Sprintf("%d", b.Controller.PendingCount()), Inline: true},
			{Name: "Queued deletions", Value: fmt.Sprintf("%d", b.Destruct.Len()), Inline: true},
			{Name: "Version", Value: botVersion, Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: time.Now().Format("2006-01-02 15:04 MST"),
		},
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		log.Warn().Err(err).Str("guild", i.GuildID).Msg("status response failed")
	}
}
