package engine

import "github.com/sqlmind/sqlmind/internal/normalize"

// Seed patterns for a cold start. The questions cover the most common
// analytics asks so the first sessions do not all fall through to the
// generator tier.
var preloadSeeds = []struct {
	question string
	template string
}{
	{
		question: "Сколько всего видео в системе?",
		template: "SELECT COUNT(*) FROM videos",
	},
	{
		question: "Сколько видео вышло 28 ноября 2025?",
		template: "SELECT COUNT(*) FROM videos WHERE DATE(video_created_at) = {DATE}",
	},
	{
		question: "Сумма просмотров всех видео",
		template: "SELECT SUM(views_count) FROM videos",
	},
	{
		question: "Сумма лайков всех видео",
		template: "SELECT SUM(likes_count) FROM videos",
	},
	{
		question: "Прирост просмотров 28 ноября 2025",
		template: "SELECT SUM(delta_views_count) FROM video_snapshots WHERE DATE(created_at) = {DATE}",
	},
	{
		question: "Топ 10 видео по просмотрам",
		template: "SELECT title, views_count FROM videos ORDER BY views_count DESC LIMIT {NUMBER}",
	},
	{
		question: "Статистика видео по дням",
		template: "SELECT DATE(video_created_at) AS day, COUNT(*) FROM videos GROUP BY day ORDER BY day",
	},
}

// PreloadPatterns seeds the pattern store with the built-in starter set and
// returns how many patterns were newly created. Already-learned trigger sets
// are left untouched.
func (e *Engine) PreloadPatterns() int {
	created := 0
	for _, seed := range preloadSeeds {
		features := normalize.Question(seed.question)
		if len(features) == 0 {
			continue
		}
		if _, ok := e.patterns.Put(features, seed.template, OriginPreload, seed.question); ok {
			created++
		}
	}
	if created > 0 {
		e.logger.Info("preloaded starter patterns", "created", created)
	}
	e.updateGauges()
	return created
}
