package dispatch

import (
	"fmt"

	"airabot/internal/anilist"
	"airabot/pkg/tgui"
)

// releaseMessage renders the announcement text for one new episode,
// HTML parse mode.
func releaseMessage(media *anilist.Media, newEpisode int) string {
	title := media.Title.Display()

	parts := []tgui.H{
		tgui.Raw("🎉 " + tgui.B(fmt.Sprintf("New Episode of %s!", title)).String()),
		tgui.Esc(fmt.Sprintf("Episode %d has been released!", newEpisode)),
	}

	if media.Title.English != "" && media.Title.English != media.Title.Romaji {
		parts = append(parts, tgui.JoinH(" ",
			tgui.B("English Title:"), tgui.Esc(media.Title.English)))
	}

	if media.Episodes != nil {
		parts = append(parts, tgui.JoinH(" ",
			tgui.B("Progress:"), tgui.Esc(fmt.Sprintf("Episode %d/%d", newEpisode, *media.Episodes))))
	}

	if media.NextAiringEpisode != nil {
		parts = append(parts, tgui.JoinH(" ",
			tgui.B("Next Episode:"), tgui.Esc(anilist.FormatAiringInfo(media.NextAiringEpisode))))
	}

	return tgui.JoinH("\n", parts...).String()
}
