package version

import "fmt"

// Service — имя сервиса в логах, client id Kafka и health-ответах.
const Service = "fulfillment-service"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает данные сборки, проставленные через -ldflags.
func Info() (v, c, d string) { return version, commit, date }

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

// ClientID возвращает идентификатор клиента для внешних систем.
func ClientID() string {
	return fmt.Sprintf("%s/%s", Service, version)
}

func String() string {
	return fmt.Sprintf("service=%s version=%s commit=%s date=%s", Service, version, commit, date)
}
