package llm

import (
	"strings"

	"github.com/mikhailstasyuk/medtesthelper-bot/constants"
)

// SystemPrompt steers the conversational model: Russian-language medical
// data assistant that answers history questions by emitting the /query_*
// command grammar instead of prose.
const SystemPrompt = `Ты — МедТест бот, ассистент по медицинским данным. Ты помогаешь организовать результаты медицинских анализов и обследований.
Ты отвечаешь на вопросы о медицинских тестах и результатах, но избегаешь давать медицинские советы и обсуждать темы, не касающиеся медицинских данных.
Если пользователь хочет поговорить на отвлечённые темы, предложи сохранить или показать информацию о медицинских документах.

Всегда общайся на русском языке. Когда пользователь просит показать сохранённые данные, ответь ровно одной командой в формате:

/query_test --name '<наименование анализа>' --start <ГГГГ-ММ-ДД> --end <ГГГГ-ММ-ДД>
/query_study --name '<наименование исследования>' --start <ГГГГ-ММ-ДД> --end <ГГГГ-ММ-ДД>

Примеры:
Пользователь: "Скинь результаты анализа крови за август 2024."
Ответ: "/query_test --name 'анализ крови' --start 2024-08-01 --end 2024-08-31"

Пользователь: "Когда мне делали УЗИ в этом году?"
Ответ: "/query_study --name 'ультразвуковое исследование' --start 2024-01-01 --end 2024-12-31"

Перед каждым ответом проверь, что ответ на русском языке и формат команды соблюдён.`

const testTemplate = `{
    "data_format": "test",
    "institution_name": "",
    "document_type": "",
    "document_date": "",
    "data": [
        {
            "name": "",
            "value": "",
            "unit": "",
            "range": "",
            "commentary": ""
        }
    ]
}`

const studyTemplate = `{
    "data_format": "study",
    "institution_name": "",
    "document_type": "",
    "document_date": "",
    "data": [
        {
            "device": "",
            "result": "",
            "report": "",
            "recommendation": ""
        }
    ]
}`

const testExample = `{
    "data_format": "test",
    "institution_name": "Helix",
    "document_type": "Анализ крови",
    "document_date": "2024-09-17",
    "data": [
        {"name": "Гемоглобин", "value": "14.8", "unit": "г/дл", "range": "13.2-17.3", "commentary": ""},
        {"name": "Лейкоциты", "value": "7.42", "unit": "тыс/мкл", "range": "4.5-11.0", "commentary": ""},
        {"name": "СОЭ", "value": "", "unit": "мм/ч", "range": "<15", "commentary": "Шкала Вестергрена, седиментационный метод"}
    ]
}`

const studyExample = `{
    "data_format": "study",
    "institution_name": "Центр восстановительного лечения Академик",
    "document_type": "Ультразвуковое исследование",
    "document_date": "",
    "data": [
        {
            "device": "Энцефалан",
            "result": "Фоновая ЭЭГ с преобладанием альфа-активности. Очаговых изменений не выявлено.",
            "report": "Альфа-ритм субдоминирует с индексом около 40%. Очаговых, эпилептиформных изменений нет.",
            "recommendation": ""
        }
    ]
}`

// BuildTransformPrompt composes the fixed formatting contract (the two
// record-shape templates, filled examples and normalization rules) with the
// extracted document text.
func BuildTransformPrompt(extractedText string) string {
	var b strings.Builder
	b.WriteString("Извлеки данные из медицинского документа ниже и заполни валидный JSON по одному из следующих образцов.\n")
	b.WriteString("Для результатов медицинских анализов:\n")
	b.WriteString(testTemplate)
	b.WriteString("\nДля результатов медицинского исследования:\n")
	b.WriteString(studyTemplate)
	b.WriteString("\nПример заполнения (data_format: test):\n")
	b.WriteString(testExample)
	b.WriteString("\nПример заполнения (data_format: study):\n")
	b.WriteString(studyExample)
	b.WriteString("\nРекомендуемые значения поля \"document_type\": [")
	b.WriteString(strings.Join(constants.DocumentTypes, ", "))
	b.WriteString("]\n")
	b.WriteString("Конвертируй все даты в формат ISO (например, 13.01.2020 в 2020-01-13).\n")
	b.WriteString("Исправляй очевидные ошибки правописания, исходя из контекста (например, \"онсистениия\" в \"консистенция\" или \"анализ моаи\" в \"анализ мочи\").\n")
	b.WriteString("Если данных нет, используй пустую строку \"\".\n")
	b.WriteString("Не используй \"\\n\", \"\\t\" и другие управляющие символы внутри значений полей.\n")
	b.WriteString("Ответ должен содержать только валидный JSON в виде текста, без пояснений.\n")
	b.WriteString("Ниже текст медицинского документа для экстракции:\n")
	b.WriteString(extractedText)
	return b.String()
}
