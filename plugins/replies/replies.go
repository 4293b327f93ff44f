// Package replies answers the bot's canned one-liners (!ping and friends).
package replies

import (
	"context"

	"koyomi/internal/core"
	"koyomi/pkg/logx"
)

type canned struct {
	name    string
	aliases []string
	text    string
}

var table = []canned{
	{name: "ping", text: "Pong!"},
	{name: "nekemasu", aliases: []string{"ねけます", "n"}, text: "ねけます"},
	{name: "moumuri", aliases: []string{"もう無理", "m"}, text: "もう無理"},
	{name: "sorry", aliases: []string{"申し訳なさございません", "s"}, text: "申し訳なさございません。"},
	{name: "d", text: "ディスコ上げときますねー"},
}

type Plugin struct {
	log logx.Logger
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "replies" }

func (p *Plugin) Init(ctx context.Context, deps core.PluginDeps) error {
	p.log = deps.Logger
	return nil
}

func (p *Plugin) Start(ctx context.Context) error { return nil }
func (p *Plugin) Stop(ctx context.Context) error  { return nil }

func (p *Plugin) Commands() []core.Command {
	cmds := make([]core.Command, 0, len(table))
	for _, c := range table {
		text := c.text
		cmds = append(cmds, core.Command{
			Name:    c.name,
			Aliases: c.aliases,
			Hidden:  true,
			Handle: func(ctx context.Context, req *core.Request) error {
				return req.Reply(ctx, text)
			},
		})
	}
	return cmds
}
