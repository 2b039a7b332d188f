package importer

import (
	"bufio"
	"io"
	"os"
	"strings"
)

const (
	frontPrefix   = "Q:"
	backPrefix    = "A:"
	contextPrefix = "C:"
)

// Draft is one card parsed from a markdown source, before validation and
// content-block conversion.
type Draft struct {
	Front   string
	Back    string
	Context string
}

type parseState int

const (
	seeking parseState = iota
	readingFront
	readingBack
	readingContext
)

// ParseFile reads a markdown file and extracts all card drafts.
func ParseFile(path string) ([]Draft, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file)
}

// Parse extracts card drafts from a markdown stream. A card is a Q: line
// (plus continuation lines) followed by an A: block and an optional C:
// context block; "---" separates cards. Drafts without both a front and a
// back are dropped.
func Parse(r io.Reader) ([]Draft, error) {
	scanner := bufio.NewScanner(r)
	var drafts []Draft
	var current Draft
	var block []string
	state := seeking

	flushBlock := func() {
		if len(block) == 0 {
			return
		}
		content := strings.TrimSpace(strings.Join(block, "\n"))
		switch state {
		case readingFront:
			current.Front = content
		case readingBack:
			current.Back = content
		case readingContext:
			current.Context = content
		}
		block = nil
	}

	finishCard := func() {
		flushBlock()
		if current.Front != "" && current.Back != "" {
			drafts = append(drafts, current)
		}
		current = Draft{}
		state = seeking
	}

	startBlock := func(next parseState, line, prefix string) {
		flushBlock()
		state = next
		block = append(block, strings.TrimPrefix(strings.TrimPrefix(line, prefix), " "))
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "---":
			finishCard()
		case strings.HasPrefix(line, frontPrefix):
			if state != seeking {
				finishCard()
			}
			startBlock(readingFront, line, frontPrefix)
		case strings.HasPrefix(line, backPrefix):
			startBlock(readingBack, line, backPrefix)
		case strings.HasPrefix(line, contextPrefix):
			startBlock(readingContext, line, contextPrefix)
		case state != seeking:
			block = append(block, line)
		}
	}
	finishCard()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return drafts, nil
}
