// Package application contém os casos de uso (regras de aplicação) para o
// controle de admissão: decisão allow/deny por chave e admissão com fila,
// prioridade e timeout.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Service.Decide(key) retorna uma Decision (allow/deny + retry-after).
package application
