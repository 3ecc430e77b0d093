package dialog

import (
	"fmt"

	"github.com/xaenox/relay-bot/internal/models"
)

const (
	textAskPrompt = "Напиши свой вопрос ниже — я постараюсь помочь 🙂"

	textHelp = "Что я умею:\n" +
		"• Отвечать на вопросы (учёба, код, идеи, тексты).\n" +
		"• Объяснять сложные темы простыми словами.\n" +
		"• Продолжать разговор, опираясь на предыдущие сообщения.\n\n" +
		"Команды:\n" +
		"/start — начать заново\n" +
		"/help — эта подсказка\n" +
		"/about — о боте\n" +
		"/reset — сбросить контекст диалога"

	textAbout = "Под капотом — Telegram Bot API, языковая модель и фильтрация нежелательного контента.\n" +
		"Сообщения с ненормативной лексикой я предлагаю переформулировать, " +
		"а после нескольких нарушений временно перестаю отвечать."

	textReset = "Контекст нашего диалога очищен 🧹\n" +
		"Можем начинать новый разговор — просто напиши сообщение."

	textUnmuted = "Спасибо за вежливость 🙂 Я снял ограничение, можем продолжать общение."

	textAIError = "Сейчас у меня не получилось получить ответ от модели 🤖\n" +
		"Попробуй, пожалуйста, ещё раз чуть позже или переформулируй вопрос."

	textEmptyAnswer = "Модель вернула пустой ответ 😕\n" +
		"Попробуй задать вопрос по-другому."

	textSessionUnavailable = "Сессия перефразирования уже недоступна. Попробуйте сформулировать запрос заново."

	textNotYourSession = "Эта сессия перефразирования не для вас."

	textRejected = "Окей, не буду отправлять этот вариант 😊\n" +
		"Ты можешь сам отредактировать свой запрос и прислать его заново — " +
		"я снова помогу с проверкой и ответом."

	textInternalError = "Что-то пошло не так. Попробуй, пожалуйста, ещё раз чуть позже."
)

func textWelcome(firstName string) string {
	if firstName == "" {
		firstName = "друг"
	}
	return fmt.Sprintf("Привет, %s! 👋\n\n", firstName) +
		"Я — AI-бот.\n\n" +
		"Могу:\n" +
		"• отвечать на вопросы,\n" +
		"• помогать с идеями и текстами,\n" +
		"• вести диалог, запоминая контекст,\n" +
		"• фильтровать нежелательный контент.\n\n" +
		"Просто напиши свой вопрос или выбери кнопку ниже 👇"
}

func textTooLong(limit int) string {
	return fmt.Sprintf("Сообщение слишком длинное (> %d символов). ", limit) +
		"Пожалуйста, сократите его и отправьте снова."
}

func textMutedReminder(unlockWord string) string {
	return "Вы несколько раз отправили сообщения с ненормативной лексикой или нарушающие правила. " +
		"Временно не могу отвечать.\n\n" +
		fmt.Sprintf("Чтобы снять ограничение, напишите одним словом: «%s».", unlockWord)
}

func textMuted(reason models.RemediationReason, unlockWord string) string {
	what := "сообщения с ненормативной лексикой"
	if reason == models.ReasonModeration {
		what = "сообщения, нарушающие правила"
	}
	return fmt.Sprintf("Вы несколько раз отправили %s. ", what) +
		"Временно не могу отвечать.\n\n" +
		fmt.Sprintf("Чтобы снять ограничение, напишите одним словом: «%s».", unlockWord)
}

func textParaphraseFailed(reason models.RemediationReason) string {
	if reason == models.ReasonModeration {
		return "Сообщение нарушает правила, и у меня сейчас не получилось " +
			"предложить безопасный вариант формулировки.\n\n" +
			"Пожалуйста, перепиши его более корректно и отправь ещё раз 🙂"
	}
	return "Сообщение содержит ненормативную лексику, и у меня сейчас " +
		"не получилось предложить корректный вариант формулировки.\n\n" +
		"Пожалуйста, перефразируй его более нейтрально и отправь ещё раз 🙂"
}

func textOffer(reason models.RemediationReason, proposed string) string {
	lead := "Похоже, в сообщении есть ненормативная лексика, мы не можем отвечать на подобные сообщения.\n\n"
	if reason == models.ReasonModeration {
		lead = "Я не могу обработать это сообщение, потому что оно нарушает правила использования.\n\n"
	}
	return lead +
		"Предлагаю перефразировать так:\n" +
		"«" + proposed + "»\n\n" +
		"Отправить этот вариант?"
}

func textAccepted(proposed, answer string) string {
	return "Отправляю перефразированный запрос и отвечаю на него:\n\n" +
		"«" + proposed + "»\n\n" +
		"Ответ:\n" + answer
}
