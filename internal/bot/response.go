package bot

import (
	"github.com/bwmarrin/discordgo"
)

// The part of the discord session the bot writes through
type Messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type ResponseString struct {
	string
}
type ResponseEmbed struct {
	discordgo.MessageEmbed
}

type Response interface {
	Send(channelid string, messenger Messenger) error
}

func (response ResponseString) Send(channelid string, messenger Messenger) error {
	_, err := messenger.ChannelMessageSend(channelid, response.string)
	return err
}

func (response ResponseEmbed) Send(channelid string, messenger Messenger) error {
	_, err := messenger.ChannelMessageSendEmbed(channelid, &response.MessageEmbed)
	return err
}
