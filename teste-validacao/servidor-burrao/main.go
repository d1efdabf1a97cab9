package main

import (
	"fmt"
	"net/http"
)

func main() {
	http.HandleFunc("/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		fmt.Fprintf(w, `{"status":"accepted","note":"tarefa recebida com sucesso"}`)
		fmt.Println("Log: Alguém submeteu uma tarefa em /tasks")
	})
	fmt.Println("Servidor de tarefas rodando em http://localhost:8081")
	err := http.ListenAndServe(":8081", nil)
	if err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
