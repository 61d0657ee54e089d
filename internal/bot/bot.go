// Package bot is the discord side of crewbot: it keeps a status board of
// who is online, answers read only commands about players and relays
// alerts from the store.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crewbot/internal/presence"
	"crewbot/internal/store"
	"crewbot/internal/tracker"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const (
	sessionsShown = 5
	topShown      = 10
)

// Read only queries the commands are answered from
type Store interface {
	ProfileByName(ctx context.Context, name string) (presence.PlayerProfile, error)
	NameHistory(ctx context.Context, uid string) ([]presence.NameChangeRecord, error)
	TopPlaytime(ctx context.Context, limit int) ([]presence.PlayerProfile, error)
	Sessions(ctx context.Context, uid string, limit int) ([]presence.Session, error)
}

type Settings struct {
	Token        string
	Prefix       string
	BoardChannel string
	AlertChannel string
}

type Bot struct {
	settings Settings
	store    Store
	clock    func() time.Time

	mu             sync.Mutex
	messenger      Messenger
	snapshot       *tracker.Snapshot
	boardMessageID string
}

func New(settings Settings, records Store) *Bot {
	return &Bot{settings: settings, store: records, clock: time.Now}
}

// Serve keeps the discord session open until the context is cancelled
func (bot *Bot) Serve(ctx context.Context) error {
	// Create session
	discord, err := discordgo.New("Bot " + bot.settings.Token)
	if err != nil {
		return fmt.Errorf("could not create discord session: %w", err)
	}

	// Event handler
	discord.AddHandler(bot.Receive)

	// Open session
	if err := discord.Open(); err != nil {
		return fmt.Errorf("could not open discord session: %w", err)
	}
	defer discord.Close()
	bot.setMessenger(discord)
	defer bot.setMessenger(nil)

	log.Info().Str("board", bot.settings.BoardChannel).Str("prefix", bot.settings.Prefix).Msg("Discord session open")
	<-ctx.Done()
	return ctx.Err()
}

func (bot *Bot) String() string {
	return "discord-bot"
}

func (bot *Bot) setMessenger(messenger Messenger) {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	bot.messenger = messenger
	// A new session starts a new board message
	bot.boardMessageID = ""
}

func (bot *Bot) Receive(discord *discordgo.Session, message *discordgo.MessageCreate) {

	// Reject my own messages
	if message.Author == nil || (discord.State != nil && discord.State.User != nil && message.Author.ID == discord.State.User.ID) {
		return
	}
	bot.handleMessage(context.Background(), discord, message.ChannelID, message.Content)
}

func (bot *Bot) handleMessage(ctx context.Context, messenger Messenger, channelID string, content string) {
	parseResult := Parse(bot.settings.Prefix, content)
	if parseResult.parseid == PARSEID_NO_BOT_PREFIX {
		return
	}
	log.Debug().Str("channel", channelID).Str("content", content).Msg("Received command")
	bot.sendResponses(messenger, channelID, bot.Handle(ctx, parseResult))
}

// Compute the answer to a parsed command
func (bot *Bot) Handle(ctx context.Context, parseResult ParseResult) []Response {
	if parseResult.parseid != PARSEID_OK {
		// The command is invalid input, so it contains an error message
		log.Debug().Str("reason", parseResult.errorMessage).Msg("Wrong input")
		return InputNotValid(parseResult.errorMessage)
	}

	switch parseResult.command {
	case COMMAND_ONLINE:
		return bot.online()
	case COMMAND_PLAYTIME:
		return bot.playtime(ctx, parseResult.arguments)
	case COMMAND_NAMES:
		return bot.names(ctx, parseResult.arguments)
	case COMMAND_TOP:
		return bot.top(ctx)
	case COMMAND_HELP:
		return HelpMessage(bot.settings.Prefix)
	default:
		panic(fmt.Sprintf("Command %d is not one of the possible ones", parseResult.command))
	}
}

func (bot *Bot) sendResponses(messenger Messenger, channelID string, responses []Response) {
	for _, response := range responses {
		if err := response.Send(channelID, messenger); err != nil {
			log.Error().Err(err).Str("channel", channelID).Msg("Could not send response")
		}
	}
}

func (bot *Bot) online() []Response {
	bot.mu.Lock()
	snapshot := bot.snapshot
	bot.mu.Unlock()

	if snapshot == nil {
		return NoSnapshotYet()
	}
	return []Response{ResponseEmbed{*BoardEmbed(*snapshot)}}
}

func (bot *Bot) playtime(ctx context.Context, name string) []Response {
	profile, responses := bot.lookup(ctx, name)
	if responses != nil {
		return responses
	}
	sessions, err := bot.store.Sessions(ctx, profile.UID, sessionsShown)
	if err != nil {
		log.Error().Err(err).Str("uid", profile.UID).Msg("Could not read sessions")
		return StoreUnavailable()
	}
	return PlayerPlaytime(profile, sessions, bot.clock())
}

func (bot *Bot) names(ctx context.Context, name string) []Response {
	profile, responses := bot.lookup(ctx, name)
	if responses != nil {
		return responses
	}
	history, err := bot.store.NameHistory(ctx, profile.UID)
	if err != nil {
		log.Error().Err(err).Str("uid", profile.UID).Msg("Could not read name history")
		return StoreUnavailable()
	}
	return PlayerNames(profile, history)
}

func (bot *Bot) top(ctx context.Context) []Response {
	profiles, err := bot.store.TopPlaytime(ctx, topShown)
	if err != nil {
		log.Error().Err(err).Msg("Could not read top playtime")
		return StoreUnavailable()
	}
	return TopPlaytime(profiles)
}

func (bot *Bot) lookup(ctx context.Context, name string) (presence.PlayerProfile, []Response) {
	profile, err := bot.store.ProfileByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return profile, PlayerNotFound(name)
	}
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("Could not look up player")
		return profile, StoreUnavailable()
	}
	return profile, nil
}

// Publish keeps the latest snapshot for the online command and refreshes
// the board message, editing it in place when it already exists
func (bot *Bot) Publish(_ context.Context, snapshot tracker.Snapshot) {
	bot.mu.Lock()
	defer bot.mu.Unlock()

	bot.snapshot = &snapshot
	if bot.messenger == nil || bot.settings.BoardChannel == "" {
		return
	}

	embed := BoardEmbed(snapshot)
	if bot.boardMessageID != "" {
		_, err := bot.messenger.ChannelMessageEditEmbed(bot.settings.BoardChannel, bot.boardMessageID, embed)
		if err == nil {
			return
		}
		log.Warn().Err(err).Msg("Could not edit the board, sending a new one")
	}
	message, err := bot.messenger.ChannelMessageSendEmbed(bot.settings.BoardChannel, embed)
	if err != nil {
		log.Error().Err(err).Str("channel", bot.settings.BoardChannel).Msg("Could not send the board")
		return
	}
	bot.boardMessageID = message.ID
}

// Alert posts to the alert channel, or only logs when there is none
func (bot *Bot) Alert(_ context.Context, message string) {
	bot.mu.Lock()
	messenger := bot.messenger
	bot.mu.Unlock()

	if messenger == nil || bot.settings.AlertChannel == "" {
		log.Warn().Str("alert", message).Msg("No alert channel available")
		return
	}
	if _, err := messenger.ChannelMessageSend(bot.settings.AlertChannel, ":warning: "+message); err != nil {
		log.Error().Err(err).Str("alert", message).Msg("Could not send alert")
	}
}
