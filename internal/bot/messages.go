package bot

import (
	"errors"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
)

const (
	msgWelcome         = "Привет! Я МедТест бот. Пришлите медицинский документ (PDF, PNG или JPEG) или спросите о сохранённых результатах."
	msgUnsupportedKind = "Пожалуйста, отправьте документ в формате JSON, PDF, PNG или JPEG."
	msgPhotoAsPhoto    = "Пожалуйста, прикрепите PNG или JPEG как документ, а не как фото."
	msgExtractFailed   = "Ошибка обработки документа."
	msgLLMUnavailable  = "Сервис распознавания временно недоступен. Попробуйте ещё раз позже."
	msgInvalidShape    = "Не удалось разобрать данные документа. Попробуйте отправить файл ещё раз."
	msgDBFailed        = "Ошибка сохранения данных. Попробуйте позже."
	msgQueryFailed     = "Ошибка запроса данных."
	msgNothingFound    = "За указанный период ничего не найдено."
	msgDateDefaulted   = "Дата документа не распознана, использована сегодняшняя дата."
)

// userMessage converts a pipeline failure into the single safe message the
// user sees. Internal detail never crosses this boundary; it is already in
// the logs by the time the error arrives here.
func userMessage(err error) string {
	var app *common.AppError
	switch {
	case errors.Is(err, common.ErrUnsupportedKind):
		return msgUnsupportedKind
	case errors.Is(err, common.ErrQualityTooLow):
		// The quality gate's message carries the measured value and is
		// safe to show.
		if errors.As(err, &app) {
			return "Качество изображения слишком низкое: " + app.Message
		}
		return "Качество изображения слишком низкое для распознавания."
	case errors.Is(err, common.ErrExtractionFailed):
		return msgExtractFailed
	case errors.Is(err, common.ErrTransformerUnavailable):
		return msgLLMUnavailable
	case errors.Is(err, common.ErrInvalidShape):
		return msgInvalidShape
	case errors.Is(err, common.ErrPersistenceFailed):
		return msgDBFailed
	case errors.Is(err, common.ErrMalformedQuery):
		return msgQueryFailed
	default:
		return msgExtractFailed
	}
}
