package bot

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"crewbot/internal/presence"
	"crewbot/internal/tracker"

	"github.com/bwmarrin/discordgo"
)

// Use "teal" color for the bot
const color int = 0x008080

// Discord rejects field values longer than this
const maxFieldLength = 1024

func InputNotValid(errorMessage string) []Response {

	return []Response{ResponseString{fmt.Sprintf("Input not valid: \n> %s", errorMessage)}}
}

func HelpMessage(prefix string) []Response {

	embed := discordgo.MessageEmbed{Title: "Commands available", Color: color}
	commands := []struct{ usage, description string }{
		{"online", "List the players online right now, by region"},
		{"playtime <name>", "Print the total playtime and the last sessions of a player"},
		{"names <name>", "Print the names a player has used"},
		{"top", "Print the players with the most playtime"},
		{"help", "Print the usage of the different commands"},
	}
	for _, command := range commands {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("`%s %s`", prefix, command.usage),
			Value:  command.description,
			Inline: false,
		})
	}
	return []Response{ResponseEmbed{embed}}
}

func PlayerNotFound(name string) []Response {
	return []Response{ResponseString{fmt.Sprintf("I have never seen a player called `%s`", name)}}
}

func StoreUnavailable() []Response {
	return []Response{ResponseString{"I cannot read the player records right now, try again later"}}
}

func NoSnapshotYet() []Response {
	return []Response{ResponseString{"I have not checked who is online yet"}}
}

// The status board, one field per region in the configured order
func BoardEmbed(snapshot tracker.Snapshot) *discordgo.MessageEmbed {

	total := 0
	for _, region := range snapshot.Regions {
		total += len(region.Online)
	}
	embed := &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("Crew online: %d", total),
		Color:     color,
		Timestamp: snapshot.At.Format(time.RFC3339),
	}
	for _, region := range snapshot.Regions {
		embed.Fields = append(embed.Fields, RegionField(region))
	}
	return embed
}

func RegionField(region tracker.RegionStatus) *discordgo.MessageEmbedField {

	if !region.Available {
		return &discordgo.MessageEmbedField{Name: fmt.Sprintf("**%s**", region.Name), Value: "Unavailable"}
	}
	name := fmt.Sprintf("**%s** (%d)", region.Name, len(region.Online))
	if len(region.Online) == 0 {
		return &discordgo.MessageEmbedField{Name: name, Value: "Nobody online"}
	}

	online := SortOnline(region.Online)
	lines := make([]string, 0, len(online))
	for _, player := range online {
		line := player.DisplayName
		if player.Classification != presence.Unclassified {
			line = fmt.Sprintf("%s (%s)", player.DisplayName, player.Classification)
		}
		lines = append(lines, line)
	}
	return &discordgo.MessageEmbedField{Name: name, Value: truncateLines(lines, maxFieldLength)}
}

// Ranked players first by rank, then everyone by name
func SortOnline(online []presence.ResolvedPresence) []presence.ResolvedPresence {
	sorted := slices.Clone(online)
	slices.SortStableFunc(sorted, func(a, b presence.ResolvedPresence) int {
		switch {
		case a.SortRank != nil && b.SortRank == nil:
			return -1
		case a.SortRank == nil && b.SortRank != nil:
			return 1
		case a.SortRank != nil && b.SortRank != nil && *a.SortRank != *b.SortRank:
			return cmp.Compare(*a.SortRank, *b.SortRank)
		}
		return cmp.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName))
	})
	return sorted
}

func PlayerPlaytime(profile presence.PlayerProfile, sessions []presence.Session, now time.Time) []Response {

	embed := discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Playtime of `%s`", profile.DisplayName),
		Description: fmt.Sprintf("%s in total, %s", FormatPlaytime(profile.TotalPlaytime), FormatLastSeen(profile.LastSeen, now)),
		Color:       color,
	}
	if len(sessions) > 0 {
		lines := make([]string, 0, len(sessions))
		for _, sess := range sessions {
			if sess.Open() {
				lines = append(lines, fmt.Sprintf("%s: online since %s", sess.Region, sess.Start.Format("Jan 2 15:04")))
			} else {
				lines = append(lines, fmt.Sprintf("%s: %s, %s", sess.Region, sess.Start.Format("Jan 2 15:04"), FormatPlaytime(sess.Duration)))
			}
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Last sessions", Value: truncateLines(lines, maxFieldLength)})
	}
	return []Response{ResponseEmbed{embed}}
}

func PlayerNames(profile presence.PlayerProfile, history []presence.NameChangeRecord) []Response {

	if len(history) == 0 {
		return []Response{ResponseString{fmt.Sprintf("Player `%s` has always been called like that", profile.DisplayName)}}
	}
	lines := make([]string, 0, len(history))
	for _, record := range history {
		lines = append(lines, fmt.Sprintf("%s: %s → %s", record.ChangedAt.Format("2006-01-02"), record.OldName, record.NewName))
	}
	embed := discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Names used by `%s`", profile.DisplayName),
		Description: truncateLines(lines, 4096),
		Color:       color,
	}
	return []Response{ResponseEmbed{embed}}
}

func TopPlaytime(profiles []presence.PlayerProfile) []Response {

	if len(profiles) == 0 {
		return []Response{ResponseString{"Nobody has played yet"}}
	}
	lines := make([]string, 0, len(profiles))
	for i, profile := range profiles {
		lines = append(lines, fmt.Sprintf("%d. **%s** %s", i+1, profile.DisplayName, FormatPlaytime(profile.TotalPlaytime)))
	}
	embed := discordgo.MessageEmbed{Title: "Most playtime", Description: strings.Join(lines, "\n"), Color: color}
	return []Response{ResponseEmbed{embed}}
}

func FormatPlaytime(d time.Duration) string {
	minutes := int64(d.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}

func FormatLastSeen(lastSeen time.Time, now time.Time) string {
	if lastSeen.IsZero() {
		return "never seen"
	}
	days := int64(now.Sub(lastSeen).Hours()) / 24
	if days <= 0 {
		return "last seen today"
	} else if days == 1 {
		return "last seen yesterday"
	} else {
		return fmt.Sprintf("last seen %d days ago", days)
	}
}

// Join lines, dropping the tail when they do not fit
func truncateLines(lines []string, limit int) string {
	var b strings.Builder
	for i, line := range lines {
		last := i == len(lines)-1
		more := fmt.Sprintf("… and %d more", len(lines)-i)
		needed := len(line)
		if !last {
			needed += 1 + len(more)
		}
		if b.Len()+needed > limit {
			b.WriteString(more)
			break
		}
		b.WriteString(line)
		if !last {
			b.WriteString("\n")
		}
	}
	return b.String()
}
