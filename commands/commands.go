// Package commands declares the slash command set. All commands are global;
// permission checks happen in the handlers, not in Discord metadata, so
// refusals can be answered in the chat's configured language.
package commands

import "github.com/bwmarrin/discordgo"

func strOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func intOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func userOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: desc,
		Required:    required,
	}
}

func Generate() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "enable",
			Description: "Enable the join captcha in this server",
		},
		{
			Name:        "disable",
			Description: "Disable the join captcha in this server",
		},
		{
			Name:        "time",
			Description: "Set how many minutes a new member has to solve the captcha",
			Options: []*discordgo.ApplicationCommandOption{
				intOpt("minutes", "Solve window in minutes (1-120)", true),
			},
		},
		{
			Name:        "difficulty",
			Description: "Set the captcha difficulty level",
			Options: []*discordgo.ApplicationCommandOption{
				intOpt("level", "Difficulty level (1-5)", true),
			},
		},
		{
			Name:        "captcha_mode",
			Description: "Set the captcha character set",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "Character set used to draw the captcha",
					Required:    true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "digits", Value: "digits"},
						{Name: "hexadecimal", Value: "hex"},
						{Name: "letters and digits", Value: "ascii"},
					},
				},
			},
		},
		{
			Name:        "welcome_msg",
			Description: "Set the welcome message, supports $user, $name, $id and $link; \"-\" disables it",
			Options: []*discordgo.ApplicationCommandOption{
				strOpt("message", "Welcome message template", true),
			},
		},
		{
			Name:        "add_ignore",
			Description: "Exempt a member from the join captcha",
			Options: []*discordgo.ApplicationCommandOption{
				userOpt("member", "Member to exempt", true),
			},
		},
		{
			Name:        "remove_ignore",
			Description: "Remove a member from the captcha exemption list",
			Options: []*discordgo.ApplicationCommandOption{
				userOpt("member", "Member to stop exempting", true),
			},
		},
		{
			Name:        "ignore_list",
			Description: "Show the captcha exemption list",
		},
		{
			Name:        "add_note",
			Description: "Bind a note to a trigger word, recalled with the trigger character",
			Options: []*discordgo.ApplicationCommandOption{
				strOpt("trigger", "Trigger word", true),
				strOpt("text", "Note text", true),
			},
		},
		{
			Name:        "delete_note",
			Description: "Delete a trigger note",
			Options: []*discordgo.ApplicationCommandOption{
				strOpt("trigger", "Trigger word", true),
			},
		},
		{
			Name:        "notes",
			Description: "List the trigger notes of this server",
		},
		{
			Name:        "add_question",
			Description: "Add a quiz question to the question bank",
			Options: []*discordgo.ApplicationCommandOption{
				strOpt("question", "Question prompt", true),
				strOpt("answer", "Correct answer", true),
				strOpt("wrong", "Wrong answers, separated by semicolons", true),
			},
		},
		{
			Name:        "delete_question",
			Description: "Delete a quiz question",
			Options: []*discordgo.ApplicationCommandOption{
				strOpt("question", "Question prompt", true),
			},
		},
		{
			Name:        "questions",
			Description: "List the quiz question bank",
		},
		{
			Name:        "restrict_non_text",
			Description: "Toggle text-only restriction for newly verified members",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Restrict verified members to text messages",
					Required:    true,
				},
			},
		},
		{
			Name:        "protection",
			Description: "Toggle join protection mode, members then need an authorization link to join",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "enabled",
					Description: "Enable or disable join protection",
					Required:    true,
				},
			},
		},
		{
			Name:        "request_access",
			Description: "Request a one-time authorization link while join protection is on",
		},
		{
			Name:        "language",
			Description: "Set the language of bot messages in this server",
			Options: []*discordgo.ApplicationCommandOption{
				strOpt("code", "Language code, e.g. EN or ES", true),
			},
		},
		{
			Name:        "version",
			Description: "Show the bot version",
		},
		{
			Name:        "about",
			Description: "About this bot",
		},
		{
			Name:        "status",
			Description: "Display bot and system status information",
		},
	}
}
