package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the New Relic transaction started by nrgin with
// the route parameters, so traces can be searched by request or courier
// ID. Handler errors added with c.Error are reported on the transaction.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		txn := nrgin.Transaction(c)
		if txn == nil {
			c.Next()
			return
		}

		for _, p := range c.Params {
			txn.AddAttribute("param."+p.Key, p.Value)
		}

		c.Next()

		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
		txn.AddAttribute("http.status", c.Writer.Status())
	}
}
