package console

import (
	"maps"
	"slices"
	"strings"

	"github.com/c-bata/go-prompt"
	"github.com/chzyer/readline"
)

// dynamicCompleter は readline.AutoCompleter を実装し、候補は go-prompt の Suggest で作る
type dynamicCompleter struct {
	inverter Inverter
}

var _ readline.AutoCompleter = (*dynamicCompleter)(nil)

// Do は pos までの入力に続く候補を返す
func (dc *dynamicCompleter) Do(line []rune, pos int) (newLine [][]rune, length int) {
	words := splitWords(string(line[:pos]))
	lastWord := ""
	if len(words) > 0 {
		lastWord = words[len(words)-1]
	}

	result := [][]rune{}
	for _, s := range prompt.FilterHasPrefix(dc.suggestions(words), lastWord, false) {
		result = append(result, []rune(s.Text[len(lastWord):]+" "))
	}
	return result, len([]rune(lastWord))
}

// suggestions は入力段階に応じた候補を返す
func (dc *dynamicCompleter) suggestions(words []string) []prompt.Suggest {
	if len(words) <= 1 {
		return commandCandidates()
	}
	def, ok := findCommand(words[0])
	if ok && def.Name == "help" {
		if len(words) > 2 {
			return nil
		}
		return commandCandidates()
	}
	if !ok || def.GetCandidatesFunc == nil {
		return nil
	}
	return def.GetCandidatesFunc(dc.inverter, words)
}

// commandCandidates はコマンド名と別名の候補を返す
func commandCandidates() []prompt.Suggest {
	var suggests []prompt.Suggest
	for _, def := range CommandTable {
		suggests = append(suggests, prompt.Suggest{Text: def.Name, Description: def.Summary})
		for _, alias := range def.Aliases {
			suggests = append(suggests, prompt.Suggest{Text: alias, Description: def.Summary})
		}
	}
	return suggests
}

// keyCandidates はカタログのキーを返す。writableOnly なら書き込めるものだけ
func keyCandidates(inv Inverter, writableOnly bool) []prompt.Suggest {
	var suggests []prompt.Suggest
	for _, e := range inv.Catalog().Entities() {
		if writableOnly && !e.Writable() {
			continue
		}
		suggests = append(suggests, prompt.Suggest{Text: e.Key, Description: e.Name})
	}
	return suggests
}

// optionCandidates は select のラベルをコード順に返す
func optionCandidates(inv Inverter, key string) []prompt.Suggest {
	e, ok := inv.Catalog().Lookup(key)
	if !ok || !e.Writable() {
		return nil
	}
	options := e.Options()
	var suggests []prompt.Suggest
	for _, code := range slices.Sorted(maps.Keys(options)) {
		suggests = append(suggests, prompt.Suggest{Text: options[code]})
	}
	return suggests
}

// splitWords は入力行を単語に分割する。クォート内の空白は単語の一部になる。
// 末尾が空白なら空の単語を1つ加える
func splitWords(line string) []string {
	if line == "" {
		return []string{}
	}

	words := make([]string, 0)
	var word strings.Builder
	inQuote := false
	lastWasSpace := true

	for _, r := range line {
		switch r {
		case ' ', '\t':
			if inQuote {
				word.WriteRune(r)
				lastWasSpace = false
				continue
			}
			if word.Len() > 0 {
				words = append(words, word.String())
				word.Reset()
			}
			lastWasSpace = true
		case '"', '\'':
			inQuote = !inQuote
			lastWasSpace = false
		default:
			word.WriteRune(r)
			lastWasSpace = false
		}
	}

	if word.Len() > 0 {
		words = append(words, word.String())
	}
	if lastWasSpace {
		words = append(words, "")
	}
	return words
}
