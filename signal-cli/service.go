package signalcli

type Service struct {
	Name    string
	Version string
}

func NewService(name string) Service {
	return Service{
		Name:    name,
		Version: CommitHash(),
	}
}
