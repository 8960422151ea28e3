package app

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	msgRemixFailed = "An error occurred while creating the remix. Try another file or try again later."
	msgNotAudio    = "Please upload an audio file (MP3, WAV, etc.)"
)

func init() {
	_ = message.SetString(language.Russian, msgRemixFailed, "Произошла ошибка при создании ремикса. Попробуйте другой файл или повторите позже.")
	_ = message.SetString(language.Russian, msgNotAudio, "Пожалуйста, загрузите аудио файл (MP3, WAV, и т.д.)")
}

// Lang returns the supported language for the given code, russian by
// default.
func Lang(code string) language.Tag {
	tag, err := language.Parse(code)
	if err != nil {
		return language.Russian
	}
	if base, _ := tag.Base(); base.String() == "en" {
		return language.English
	}
	return language.Russian
}

// RemixFailedMessage is shown when the remix couldn't be generated.
func RemixFailedMessage(lang language.Tag) string {
	return message.NewPrinter(lang).Sprintf(msgRemixFailed)
}

// NotAudioMessage is shown when the selected file isn't audio.
func NotAudioMessage(lang language.Tag) string {
	return message.NewPrinter(lang).Sprintf(msgNotAudio)
}
