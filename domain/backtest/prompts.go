package backtest

// DefaultForecastTemplate is the built-in forecaster prompt. Run specs may
// override it as long as the bracketed tokens are kept.
const DefaultForecastTemplate = `You are an economic forecaster predicting [INDICATOR] for [COUNTRY].

Latest observation ([DATE]): [VALUE] [UNIT]

Related series for the same period:
[PEER_DATA]

Feedback from the judge on your last [FEEDBACK_LIMIT] forecasts:
[PAST_FEEDBACK]

Predict the value of [INDICATOR] for [NEXT_DATE]. Respond with a single JSON
object and nothing else:
{"prediction": <number>, "unit": "<string>", "rationale": "<string>", "confidence": <number between 0 and 1>}`

// DefaultJudgeTemplate is the built-in judge prompt.
const DefaultJudgeTemplate = `You are the judge scoring forecast #[TICK_INDEX] made by [MODEL_NAME] for [INDICATOR] ([COUNTRY], period [PERIOD]).

Forecast: [PREDICTION] [UNIT] with stated confidence [CONFIDENCE]
Realized value: [ACTUAL] [UNIT]

The model's last [FEEDBACK_LIMIT] scored forecasts:
[PAST_PERFORMANCE]

Score the forecast. "accuracy" is a 0-1 quality grade, "error" is the absolute
difference between prediction and realized value, and "feedback" is concise
guidance the model will see before its next forecast. Respond with a single
JSON object and nothing else:
{"accuracy": <number between 0 and 1>, "error": <number >= 0>, "feedback": "<string>"}`
