// SPDX-License-Identifier: EPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	PlaceholderCredentialsId
	StoreUnavailableId
	ServiceUnreachableId
	InstagramAuthFailedId
	FFmpegNotFoundId
	GenAIKeyMissingId
	LocalToolNotFoundId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink  // must never be empty, because we need to have docs about all issue types
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

Could not load the instagent configuration file.

## Configuration file locations:
- Linux: ~/.config/instagent/config.cue
- macOS: ~/Library/Application Support/instagent/config.cue
- Windows: %APPDATA%\instagent\config.cue

## Things you can try:
- Create a default configuration:
~~~
$ instagent config init
~~~

- Check the configuration syntax
- Remove the config file to use defaults:
~~~
$ rm ~/.config/instagent/config.cue
~~~

## Example configuration:
~~~cue
instagram: {
  username:       "my_account"
  password:       "secret"
  target_account: "creator_i_follow"
}

genai: api_key: "AIza..."

server: addr: "localhost:8000"
~~~`,
	}

	placeholderCredentialsIssue = &Issue{
		id: PlaceholderCredentialsId,
		mdMsg: `
# Configuration still holds placeholder values!

One or more credential fields contain the shipped defaults, so the agent
cannot talk to Instagram or the GenAI API yet.

## Things you can try:
- Edit your config file and replace the placeholders:
~~~cue
instagram: {
  username:       "my_account"   // not "ton_user"
  password:       "secret"       // not "ton_mdp"
  target_account: "creator"      // not "compte_cible"
}
genai: api_key: "AIza..."        // not "TA_CLE_API"
~~~

- Or set credentials via environment variables:
~~~
$ export INSTAGENT_INSTAGRAM_USERNAME=my_account
$ export GEMINI_API_KEY=AIza...
~~~

- Show the config file location:
~~~
$ instagent config path
~~~`,
	}

	storeUnavailableIssue = &Issue{
		id: StoreUnavailableId,
		mdMsg: `
# Vector store unavailable!

The transcript index database could not be opened.

## Common causes:
- The data directory does not exist or is not writable
- Another process holds the database lock
- The database file is corrupted

## Things you can try:
- Run an update to create the store:
~~~
$ instagent update
~~~

- Check the data directory permissions
- Move the broken index aside and re-index:
~~~
$ mv data/index.db data/index.db.bak
$ instagent update
~~~`,
	}

	serviceUnreachableIssue = &Issue{
		id: ServiceUnreachableId,
		mdMsg: `
# Agent service unreachable!

No service answered on the configured address.

## Things you can try:
- Start the service:
~~~
$ instagent serve
~~~

- Check which address the service listens on:
~~~
$ instagent config show
~~~

- Point the checker at a different URL:
~~~
$ instagent check --url http://localhost:8000
~~~`,
	}

	instagramAuthFailedIssue = &Issue{
		id: InstagramAuthFailedId,
		mdMsg: `
# Instagram login failed!

The agent could not authenticate against the Instagram API.

## Common causes:
- Wrong username or password
- Instagram challenged the login (new device, unusual location)
- The account requires two-factor authentication

## Things you can try:
- Verify the credentials in your config
- Log in once from a browser on this machine to clear challenges
- Use a dedicated account for the agent`,
	}

	ffmpegNotFoundIssue = &Issue{
		id: FFmpegNotFoundId,
		mdMsg: `
# ffmpeg not found!

Audio extraction needs the ffmpeg binary on your PATH.

## Things you can try:
- Install ffmpeg:
  - Linux: ` + "`sudo apt install ffmpeg`" + ` or ` + "`sudo dnf install ffmpeg`" + `
  - macOS: ` + "`brew install ffmpeg`" + `
  - Windows: https://ffmpeg.org/download.html

- Verify it is reachable:
~~~
$ ffmpeg -version
~~~`,
	}

	genAIKeyMissingIssue = &Issue{
		id: GenAIKeyMissingId,
		mdMsg: `
# GenAI API key missing!

Transcription, embeddings and answers all need a Gemini API key.

## Things you can try:
- Set the key in your config:
~~~cue
genai: api_key: "AIza..."
~~~

- Or export it in the environment:
~~~
$ export GEMINI_API_KEY=AIza...
~~~

- Create a key at https://aistudio.google.com/apikey`,
	}

	localToolNotFoundIssue = &Issue{
		id: LocalToolNotFoundId,
		mdMsg: `
# Project-local instagent not found!

The launcher looked for ` + "`bin/instagent`" + ` in the project directory and
fell back to the one on your PATH. If no system-wide install exists either,
the checks cannot run.

## Things you can try:
- Build the project-local tool:
~~~
$ go build -o bin/instagent ./cmd/instagent
~~~

- Or install it on your PATH:
~~~
$ go install instagent/cmd/instagent@latest
~~~`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():       configLoadFailedIssue,
		placeholderCredentialsIssue.Id(): placeholderCredentialsIssue,
		storeUnavailableIssue.Id():       storeUnavailableIssue,
		serviceUnreachableIssue.Id():     serviceUnreachableIssue,
		instagramAuthFailedIssue.Id():    instagramAuthFailedIssue,
		ffmpegNotFoundIssue.Id():         ffmpegNotFoundIssue,
		genAIKeyMissingIssue.Id():        genAIKeyMissingIssue,
		localToolNotFoundIssue.Id():      localToolNotFoundIssue,
	}
)

func Values() []*Issue {
	return maps.Values(issues)
}

func Get(id Id) *Issue {
	return issues[id]
}
