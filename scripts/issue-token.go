package main

import (
	"fmt"
	"os"

	"github.com/lib/pq"

	"github.com/fusetalk/fusetalk-server/internal/util"
)

// Issues a bearer token for an existing user. Only the hash is stored, so the
// token is shown once.
//
//	go run scripts/issue-token.go <nickname>
func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: go run scripts/issue-token.go <nickname>")
		os.Exit(2)
	}

	token, err := util.NewBearerToken()
	if err != nil {
		fmt.Fprintln(os.Stderr, "issue token:", err)
		os.Exit(1)
	}

	fmt.Println("token:", token)
	fmt.Printf("UPDATE users SET token_hash = '%s' WHERE nickname = %s;\n",
		util.HashToken(token), pq.QuoteLiteral(os.Args[1]))
}
