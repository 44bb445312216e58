package kafka

// Config содержит конфигурацию для подключения к Kafka.
// Читается caarlos0/env как вложенная секция internal/config.Config.
type Config struct {
	// Brokers - список брокеров через запятую: "broker1:9092,broker2:9092".
	// Пустой список означает, что публикация событий отключена.
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// TransactionCompletedTopic - топик для событий завершения транзакций
	TransactionCompletedTopic string `env:"KAFKA_TRANSACTION_COMPLETED_TOPIC" envDefault:"paystation.transaction.completed"`
}

// Enabled возвращает true, если задан хотя бы один брокер
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}
