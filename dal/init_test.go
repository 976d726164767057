package dal

import "testing"

func TestInitDB(t *testing.T) {

	myCfg := DBConfig{
		Path: ":memory:",
	}

	t.Run("test_1", func(t *testing.T) {
		if err := InitDB(&myCfg, true); err != nil {
			t.Errorf("InitDB() error = %v", err)
		}
		if GlobalDBClient == nil {
			t.Error("InitDB() left the global client nil")
		}
	})
}
